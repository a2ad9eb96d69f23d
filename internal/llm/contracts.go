package llm

import (
	"context"
	"time"
)

// ExtractRequest describes one program page sent to the oracle.
type ExtractRequest struct {
	ImagePath       string
	Filename        string
	BusinessContext string
}

// RawExtraction is the decoded, not yet salvaged, oracle output for one page.
type RawExtraction struct {
	// Doc is the sanitized JSON document ({"restaurants": [...]}) as generic values.
	Doc map[string]any
	// Content is the sanitized JSON bytes that produced Doc.
	Content []byte
	// StrictValid reports whether Content already matched the full schema.
	StrictValid bool
	// Notes lists what the sanitizer renamed, coerced or dropped.
	Notes    []string
	Model    string
	Attempts int
	Elapsed  time.Duration
}

// Extractor is the oracle adapter the batch orchestrator depends on.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (RawExtraction, error)
}

// VisionRequest is a single image+text chat request.
type VisionRequest struct {
	SystemPrompt string
	UserPrompt   string
	ImageDataURL string
	JSONSchema   map[string]any
}

// VisionResponse is the assistant message plus accounting from one request.
type VisionResponse struct {
	RequestID        string
	Model            string
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// VisionCompleter issues one request to a vision-capable chat model.
type VisionCompleter interface {
	Complete(ctx context.Context, req VisionRequest) (VisionResponse, error)
}
