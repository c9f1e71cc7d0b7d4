package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeFragments = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"iban",
}

// SafeAttributes drops attributes whose key suggests credentials or bank
// identifiers, and empty string values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		if blocked(key) {
			continue
		}
		if attr.Value.Type() == attribute.STRING && strings.TrimSpace(attr.Value.AsString()) == "" {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error safe to attach to a span.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if blocked(lower) {
		return errors.New("redacted error")
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return errors.New(msg)
}

func blocked(value string) bool {
	for _, fragment := range blockedAttributeFragments {
		if strings.Contains(value, fragment) {
			return true
		}
	}
	return false
}
