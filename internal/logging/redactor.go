package logging

import (
	"strings"
	"sync"
)

const redactedValue = "[REDACTED]"

// Redactor handles secret redaction in log fields.
// Keys are matched exactly and case-insensitively.
type Redactor struct {
	mu            sync.RWMutex
	sensitiveKeys map[string]bool
}

// NewRedactor creates a new Redactor with default sensitive keys.
func NewRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: map[string]bool{
			// Credentials
			"password":      true,
			"token":         true,
			"bearer":        true,
			"authorization": true,
			"cookie":        true,
			"secret":        true,
			"jwt_secret":    true,
			"dummy_secret":  true,
			"dsn":           true,

			// SRP values; single letters are lowercased before matching
			"salt":        true,
			"verifier":    true,
			"a":           true,
			"b":           true,
			"private_b":   true,
			"s":           true,
			"k":           true,
			"x":           true,
			"m1":          true,
			"m2":          true,
			"proof":       true,
			"session_key": true,

			// Sealed token
			"iv":         true,
			"ciphertext": true,

			// TLS material
			"private_key": true,
			"tls_key":     true,
		},
	}
}

// AddSensitiveKey adds a custom key to the redaction list.
func (r *Redactor) AddSensitiveKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensitiveKeys[strings.ToLower(key)] = true
}

// RedactFields redacts sensitive values from a map of fields, descending into nested maps.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	redacted := make(map[string]any, len(fields))

	for k, v := range fields {
		switch {
		case r.isSensitiveKey(k):
			redacted[k] = redactedValue
		case isMap(v):
			redacted[k] = r.RedactFields(v.(map[string]any))
		default:
			redacted[k] = v
		}
	}

	return redacted
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// isSensitiveKey checks if a field key is marked as sensitive.
func (r *Redactor) isSensitiveKey(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sensitiveKeys[strings.ToLower(key)]
}
