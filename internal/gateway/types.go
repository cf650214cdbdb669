package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy is the gateway's per-route retry configuration.
type RetryPolicy struct {
	MaxAttempts          int         `json:"maxAttempts"`
	FirstBackoff         ISODuration `json:"firstBackoff"`
	MaxBackoff           ISODuration `json:"maxBackoff"`
	Factor               int         `json:"factor"`
	BasedOnPreviousValue bool        `json:"basedOnPreviousValue"`
	Statuses             []int       `json:"statuses"`
	Methods              []string    `json:"methods"`
}

// BulkheadConfig is the gateway's per-route bulkhead configuration.
type BulkheadConfig struct {
	MaxConcurrentCalls int   `json:"maxConcurrentCalls"`
	MaxWaitMs          int64 `json:"maxWaitMs"`
}

// ISODuration is a time.Duration carried on the wire as an ISO-8601 duration
// ("PT0.05S"). Plain numbers are read as seconds.
type ISODuration time.Duration

func (d ISODuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d ISODuration) String() string {
	td := time.Duration(d)
	if td == 0 {
		return "PT0S"
	}
	sign := ""
	if td < 0 {
		sign = "-"
		td = -td
	}
	var b strings.Builder
	b.WriteString(sign + "PT")
	if h := td / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		td -= h * time.Hour
	}
	if m := td / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		td -= m * time.Minute
	}
	if td > 0 {
		b.WriteString(strconv.FormatFloat(td.Seconds(), 'f', -1, 64) + "S")
	}
	return b.String()
}

func (d ISODuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

var isoDurationRe = regexp.MustCompile(`^(-)?PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

func (d *ISODuration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = ISODuration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid duration %s: %w", data, err)
	}
	parsed, err := ParseISODuration(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseISODuration parses the time part of an ISO-8601 duration (PTnHnMn.nS).
func ParseISODuration(raw string) (ISODuration, error) {
	m := isoDurationRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(raw)))
	if m == nil || (m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", raw)
	}
	var total time.Duration
	if m[2] != "" {
		h, _ := strconv.Atoi(m[2])
		total += time.Duration(h) * time.Hour
	}
	if m[3] != "" {
		mins, _ := strconv.Atoi(m[3])
		total += time.Duration(mins) * time.Minute
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", raw, err)
		}
		total += time.Duration(secs * float64(time.Second))
	}
	if m[1] == "-" {
		total = -total
	}
	return ISODuration(total), nil
}
