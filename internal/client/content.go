package client

import (
	"context"
	"strings"
)

// Media is an optional attachment to a generation request. URI references
// a remotely reachable file, Data carries inline bytes.
type Media struct {
	URI      string
	MIMEType string
	Data     []byte
}

// ContentGenerator is the text/multimodal generation capability
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string, media *Media) (string, error)
	IsConfigured() bool
}

// CleanJSONResponse strips markdown code fences and any prose around the
// outermost JSON object of a model response
func CleanJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
