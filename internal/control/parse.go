package control

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/whorules/arm-controller/internal/domain/model"
)

// ParseSampleValue parses the string form of a metric value. Only finite
// numbers are accepted: NaN, infinities and values that overflow
// float64 are rejected.
func ParseSampleValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrMetricMalformed)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q: %w", ErrMetricMalformed, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value %q", ErrMetricMalformed, raw)
	}
	return v, nil
}

// Sample is a decoded metric observation for one resource.
type Sample struct {
	Key   model.ResourceKey
	Value float64
}

// decodeSeries extracts the resource key and value of one series.
func decodeSeries(s Series, label string) (Sample, error) {
	key, ok := s.Labels[label]
	if !ok || key == "" {
		return Sample{}, fmt.Errorf("%w: missing label %q", ErrMetricMalformed, label)
	}
	if len(s.Value) < 2 {
		return Sample{Key: model.ResourceKey(key)}, fmt.Errorf("%w: value tuple has %d elements", ErrMetricMalformed, len(s.Value))
	}
	raw, ok := s.Value[1].(string)
	if !ok {
		return Sample{Key: model.ResourceKey(key)}, fmt.Errorf("%w: value is %T, want string", ErrMetricMalformed, s.Value[1])
	}
	v, err := ParseSampleValue(raw)
	if err != nil {
		return Sample{Key: model.ResourceKey(key)}, err
	}
	return Sample{Key: model.ResourceKey(key), Value: v}, nil
}

// decodeByKey decodes every well-formed series into a key->value map. Malformed
// series are skipped; the last series wins on duplicate keys.
func decodeByKey(series []Series, label string) map[model.ResourceKey]float64 {
	out := make(map[model.ResourceKey]float64, len(series))
	for _, s := range series {
		sample, err := decodeSeries(s, label)
		if err != nil {
			continue
		}
		out[sample.Key] = sample.Value
	}
	return out
}
