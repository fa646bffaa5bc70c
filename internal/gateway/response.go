package gateway

import (
	"strconv"
	"strings"
)

// Response is a decoded gateway JSON object.
type Response map[string]any

// Status returns the "status" field, defaulting to "ok" when absent.
func (r Response) Status() string {
	if s := r.String("status"); s != "" {
		return s
	}
	return "ok"
}

// OK reports whether the response is not a "ko" failure.
func (r Response) OK() bool {
	return !strings.EqualFold(r.Status(), "ko")
}

// String returns a string field, or "" when it is missing or not a string.
func (r Response) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Int returns an integer field. JSON numbers and numeric strings are accepted.
func (r Response) Int(key string) (int, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	return parseCode(v)
}

// Float returns a numeric field. JSON numbers and numeric strings are accepted.
func (r Response) Float(key string) (float64, bool) {
	switch t := r[key].(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Synchronizing reports whether the gateway says it is busy synchronising
// with its locks, which it signals through the "current_status" field.
func (r Response) Synchronizing() bool {
	return strings.Contains(strings.ToLower(r.String("current_status")), "synchronizing")
}
