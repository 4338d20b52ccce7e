package services

import (
	"fmt"
	"unicode/utf8"
)

// OutputSizeLimit caps captured output stored on a deployment log.
// Keeps log items under the DynamoDB item size limit.
const OutputSizeLimit = 400 * 1024

// TruncateOutput keeps the tail of s when it exceeds limit bytes.
// The end of a failing script's output is where the error usually is.
func TruncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	cut := len(s) - limit
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return fmt.Sprintf("[output truncated: %d bytes omitted]\n%s", cut, s[cut:])
}
