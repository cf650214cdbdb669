package control

import "errors"

var (
	// ErrMetricUnavailable means the metric query failed or returned a non-success status.
	ErrMetricUnavailable = errors.New("metric unavailable")
	// ErrMetricMalformed means a series could not be decoded into a finite sample.
	ErrMetricMalformed = errors.New("metric malformed")
	// ErrUnknownResource means a sample referenced a resource with no seeded state.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrApplyFailure means the gateway did not accept a setpoint change.
	ErrApplyFailure = errors.New("apply failure")
	// ErrNotReady means the controller has not seeded its baseline yet.
	ErrNotReady = errors.New("controller not ready")
	// ErrTickInProgress means an evaluation was requested while another one was running.
	ErrTickInProgress = errors.New("tick already in progress")
	// ErrInvalidPolicy means a policy failed validation or does not fit the current setpoints.
	ErrInvalidPolicy = errors.New("invalid policy")
)
