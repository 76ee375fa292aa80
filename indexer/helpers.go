package indexer

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// fallbackEventID derives a stable event id from identifying fields when
// a record carries no explicit id, so reruns over the same export are
// idempotent.
func fallbackEventID(prefix string, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%s-%x", prefix, h[:8])
}

// composeText builds the display/embedding text block: a structured
// header followed by the raw content.
func composeText(source, author string, ts time.Time, apis []string, content string) string {
	var b strings.Builder

	b.WriteString("source: " + source + "\n")
	if author != "" {
		b.WriteString("author: " + author + "\n")
	}
	if !ts.IsZero() {
		b.WriteString("timestamp: " + ts.UTC().Format(time.RFC3339) + "\n")
	}
	if len(apis) > 0 {
		b.WriteString("apis: " + strings.Join(apis, ", ") + "\n")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(content))

	return b.String()
}
