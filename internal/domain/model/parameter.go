package model

import (
	"fmt"
	"strings"
)

// Parameter names one of the gateway knobs the controller tunes.
type Parameter string

const (
	ParameterTimeout     Parameter = "timeout"
	ParameterRetry       Parameter = "retry"
	ParameterConcurrency Parameter = "concurrency"
)

func (p Parameter) String() string {
	return string(p)
}

// AllParameters lists the tunable parameters in startup order.
func AllParameters() []Parameter {
	return []Parameter{ParameterTimeout, ParameterRetry, ParameterConcurrency}
}

func ParseParameter(raw string) (Parameter, error) {
	switch Parameter(strings.ToLower(strings.TrimSpace(raw))) {
	case ParameterTimeout:
		return ParameterTimeout, nil
	case ParameterRetry:
		return ParameterRetry, nil
	case ParameterConcurrency, "bulkhead":
		return ParameterConcurrency, nil
	default:
		return "", fmt.Errorf("unsupported parameter %q", raw)
	}
}

// ResourceKey identifies a controlled gateway route.
type ResourceKey string

func (k ResourceKey) String() string {
	return string(k)
}
