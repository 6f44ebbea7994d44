package util

import "strings"

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// NormalizeNewlines converts CRLF and lone CR line endings to LF.
func NormalizeNewlines(value string) string {
	return newlineReplacer.Replace(value)
}

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(value string) string {
	return strings.TrimPrefix(value, "\ufeff")
}
