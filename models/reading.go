package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

type Field string

const (
	Temperature Field = "temperature"
	Humidity    Field = "humidity"
	Light       Field = "light"
)

// Fields lists the known sensor fields in processing order.
var Fields = []Field{Temperature, Humidity, Light}

func (f Field) Known() bool {
	switch f {
	case Temperature, Humidity, Light:
		return true
	}
	return false
}

var ErrMissingInput = errors.New("no data provided")

// CoercionError reports a known field whose value is not a number.
type CoercionError struct {
	Field Field
	Value string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("could not convert %s value %s to float", e.Field, e.Value)
}

// Reading is one sensor payload. Known fields are nil when absent,
// everything else the device sends is kept verbatim in Extra.
type Reading struct {
	Temperature *float64
	Humidity    *float64
	Light       *float64
	Extra       map[string]json.RawMessage
	raw         map[string]json.RawMessage
}

func (r *Reading) Value(f Field) (float64, bool) {
	var p *float64
	switch f {
	case Temperature:
		p = r.Temperature
	case Humidity:
		p = r.Humidity
	case Light:
		p = r.Light
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (r *Reading) Set(f Field, v float64) {
	switch f {
	case Temperature:
		r.Temperature = &v
	case Humidity:
		r.Humidity = &v
	case Light:
		r.Light = &v
	}
}

// Original returns the payload as received, for echoing back to the caller.
func (r *Reading) Original() map[string]json.RawMessage {
	if r.raw != nil {
		return r.raw
	}
	out := make(map[string]json.RawMessage, len(r.Extra)+len(Fields))
	for k, v := range r.Extra {
		out[k] = v
	}
	for _, f := range Fields {
		if v, ok := r.Value(f); ok {
			out[string(f)] = json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return out
}

func ParseReading(body []byte) (Reading, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Reading{}, ErrMissingInput
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	if len(raw) == 0 {
		return Reading{}, ErrMissingInput
	}

	reading := Reading{
		Extra: make(map[string]json.RawMessage),
		raw:   raw,
	}
	for key, value := range raw {
		f := Field(key)
		if !f.Known() {
			reading.Extra[key] = value
			continue
		}
		v, err := coerce(value)
		if err != nil {
			return Reading{}, &CoercionError{Field: f, Value: string(value)}
		}
		reading.Set(f, v)
	}

	return reading, nil
}

// coerce accepts JSON numbers, numeric strings and booleans (1 or 0).
// Numbers too large for a float64 become ±Inf and are left to the range
// check; NaN never reaches a history.
func coerce(value json.RawMessage) (float64, error) {
	switch string(bytes.TrimSpace(value)) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}

	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(string(bytes.TrimSpace([]byte(n))), 64)
	if err != nil && !(errors.Is(err, strconv.ErrRange) && math.IsInf(v, 0)) {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, errors.New("value is not a number")
	}
	return v, nil
}

type ProcessedReading struct {
	Original    map[string]json.RawMessage `json:"original"`
	Corrected   map[string]any             `json:"corrected"`
	Anomalies   map[Field]bool             `json:"anomalies"`
	ProcessedAt time.Time                  `json:"processed_at"`
}

type HealthStatus struct {
	Status    string `json:"status"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}
