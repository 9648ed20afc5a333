package core

import "regexp"

// secretPattern matches common API-key shapes (sk-..., Bearer ..., long
// hex/base64 tokens) so they never land in a log line via an error string.
var secretPattern = regexp.MustCompile(
	`(?i)(sk-[a-zA-Z0-9_-]{10,}|bearer\s+[a-zA-Z0-9._-]{10,}|[a-zA-Z0-9_-]{32,})`,
)

// RedactError returns err's message with secret-shaped substrings replaced by
// "[REDACTED]". Used before any error crosses into a log line.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return secretPattern.ReplaceAllString(err.Error(), "[REDACTED]")
}
