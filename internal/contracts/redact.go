package contracts

import "strings"

// sensitiveExact lists field names that are always redacted regardless of
// substring content.
var sensitiveExact = map[string]bool{
	"POSTGRES_DSN": true,
	"REDIS_URL":    true,
}

var sensitiveSubstrings = []string{"PASSWORD", "SECRET", "TOKEN", "DSN"}

// RedactKey reports whether key must be masked before a contract or its
// surrounding diagnostics are logged.
func RedactKey(key string) bool {
	upper := strings.ToUpper(key)
	if sensitiveExact[upper] {
		return true
	}
	for _, fragment := range sensitiveSubstrings {
		if strings.Contains(upper, fragment) {
			return true
		}
	}
	return false
}

// RedactFields returns a copy of fields with every sensitive value replaced
// by the fixed mask, used when dumping diagnostic key/value pairs that may
// carry connection strings or credentials.
func RedactFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if RedactKey(k) {
			out[k] = "****"
			continue
		}
		out[k] = v
	}
	return out
}
