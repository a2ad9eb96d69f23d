package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kousskous/menu-extractor/internal/utils"
)

// CallRecord is everything observable about one oracle request.
type CallRecord struct {
	CallNumber       int           `json:"call_number"`
	RequestID        string        `json:"request_id"`
	RunID            string        `json:"run_id,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Filename         string        `json:"filename"`
	Attempt          int           `json:"attempt"`
	Model            string        `json:"model"`
	PromptHash       string        `json:"prompt_hash"`
	Prompt           string        `json:"prompt"`
	Response         string        `json:"response"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TokensEstimated  bool          `json:"tokens_estimated"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	Error            string        `json:"error,omitempty"`
}

// CallLogger receives every oracle call. Implementations must not fail the caller.
type CallLogger interface {
	LogCall(ctx context.Context, rec CallRecord)
}

// PromptHash is a short stable digest used to group identical prompts.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:4])
}

// EstimateTokens is the rough words*1.3 heuristic used when the provider reports no usage.
func EstimateTokens(s string) int {
	return int(float64(len(strings.Fields(s))) * 1.3)
}

// NopCallLogger discards records.
type NopCallLogger struct{}

func (NopCallLogger) LogCall(context.Context, CallRecord) {}

// SlogCallLogger writes a summary line per call.
type SlogCallLogger struct {
	Logger *slog.Logger
}

func (l SlogCallLogger) LogCall(ctx context.Context, rec CallRecord) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if rec.Error != "" {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "llm.call",
		"req_id", rec.RequestID,
		"file", rec.Filename,
		"attempt", rec.Attempt,
		"model", rec.Model,
		"prompt_hash", rec.PromptHash,
		"prompt_len", len(rec.Prompt),
		"response_len", len(rec.Response),
		"prompt_tokens", rec.PromptTokens,
		"completion_tokens", rec.CompletionTokens,
		"elapsed_ms", rec.Elapsed.Milliseconds(),
		"error", rec.Error,
	)
}

// CallHistory keeps every record of a run in memory and numbers them.
type CallHistory struct {
	mu      sync.Mutex
	records []CallRecord
}

func NewCallHistory() *CallHistory { return &CallHistory{} }

func (h *CallHistory) LogCall(_ context.Context, rec CallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec.CallNumber = len(h.records) + 1
	h.records = append(h.records, rec)
}

// Records returns a copy of the recorded calls in call order.
func (h *CallHistory) Records() []CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CallRecord(nil), h.records...)
}

// TotalTokens sums prompt and completion tokens over the run.
func (h *CallHistory) TotalTokens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, r := range h.records {
		total += r.PromptTokens + r.CompletionTokens
	}
	return total
}

// Save writes the history as an indented JSON artifact.
func (h *CallHistory) Save(path string) error {
	recs := h.Records()
	if len(recs) == 0 {
		return nil
	}
	if err := utils.WriteJSONAtomic(path, recs); err != nil {
		return fmt.Errorf("write call history: %w", err)
	}
	return nil
}

// MultiCallLogger fans a record out to several loggers.
type MultiCallLogger []CallLogger

func (m MultiCallLogger) LogCall(ctx context.Context, rec CallRecord) {
	for _, l := range m {
		if l != nil {
			l.LogCall(ctx, rec)
		}
	}
}
