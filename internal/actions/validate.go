package actions

import (
	"fmt"

	"github.com/halcyonops/waba-actions/internal/apierr"
)

// Required-field checks run before any external call, so a bad request never
// costs a service round trip.

func requireString(payload map[string]any, field string) (string, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return "", apierr.MissingField(field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apierr.InvalidArguments(fmt.Sprintf("field %q must be a non-empty string", field))
	}
	return s, nil
}

func optString(payload map[string]any, field string) string {
	s, _ := payload[field].(string)
	return s
}

// requireNumber reads a JSON number as int64. Decoded JSON numbers arrive as
// float64.
func requireNumber(payload map[string]any, field string) (int64, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return 0, apierr.MissingField(field)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, apierr.InvalidArguments(fmt.Sprintf("field %q must be a number", field))
	}
	return int64(f), nil
}

func optNumber(payload map[string]any, field string, def int64) int64 {
	f, ok := payload[field].(float64)
	if !ok {
		return def
	}
	return int64(f)
}

func optBool(payload map[string]any, field string) bool {
	b, _ := payload[field].(bool)
	return b
}

func requireStringSlice(payload map[string]any, field string) ([]string, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return nil, apierr.MissingField(field)
	}
	raw, ok := v.([]any)
	if !ok || len(raw) == 0 {
		return nil, apierr.InvalidArguments(fmt.Sprintf("field %q must be a non-empty array of strings", field))
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, apierr.InvalidArguments(fmt.Sprintf("field %q must contain only non-empty strings", field))
		}
		out = append(out, s)
	}
	return out, nil
}

func optStringSlice(payload map[string]any, field string) []string {
	raw, ok := payload[field].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
