package main

import (
	"encoding/json"
	"io"
	"strings"
)

// writeJSON pretty-prints v for terminal consumption.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// idPrefix shortens a run ID to its leading UUID group for table display.
func idPrefix(id string) string {
	head, _, _ := strings.Cut(id, "-")
	if len(head) > 8 {
		head = head[:8]
	}
	return head
}

// clip bounds s to n bytes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
