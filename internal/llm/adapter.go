package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kousskous/menu-extractor/internal/common"
)

// ErrExtractionFailed is the explicit per-page failure once retries are exhausted
// or the error is not worth retrying. The batch records it and moves on.
var ErrExtractionFailed = errors.New("extraction failed")

// AdapterConfig tunes the oracle adapter.
type AdapterConfig struct {
	Model      string
	Retry      RetryConfig
	MaxImageMB int
}

// Adapter turns one page image into a decoded RawExtraction. It keeps no
// per-page state: every Extract builds its prompt from the request alone.
type Adapter struct {
	completer VisionCompleter
	calls     CallLogger
	cfg       AdapterConfig
	schema    map[string]any
	compiled  *jsonschema.Schema
	logger    *slog.Logger
}

func NewAdapter(completer VisionCompleter, calls CallLogger, cfg AdapterConfig, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if calls == nil {
		calls = NopCallLogger{}
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	schema := BuildExtractionJSONSchema()
	compiled, err := CompileSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("extraction schema: %w", err)
	}
	return &Adapter{
		completer: completer,
		calls:     calls,
		cfg:       cfg,
		schema:    schema,
		compiled:  compiled,
		logger:    logger,
	}, nil
}

// Extract issues the vision request, retrying malformed answers and transient faults.
func (a *Adapter) Extract(ctx context.Context, req ExtractRequest) (RawExtraction, error) {
	start := time.Now()

	dataURL, err := ReadAsDataURL(req.ImagePath, a.cfg.MaxImageMB)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("%w: read image: %w", ErrExtractionFailed, err)
	}

	vreq := VisionRequest{
		SystemPrompt: BuildSystemPrompt(req),
		UserPrompt:   BuildUserPrompt(req),
		ImageDataURL: dataURL,
		JSONSchema:   a.schema,
	}
	prompt := vreq.SystemPrompt + "\n\n" + vreq.UserPrompt

	var lastErr error
	attempt := 0
	for attempt < a.cfg.Retry.MaxAttempts {
		attempt++
		out, err := a.attempt(ctx, req, vreq, prompt, attempt)
		if err == nil {
			out.Attempts = attempt
			out.Elapsed = time.Since(start)
			a.logger.Info("llm.extract.ok",
				"file", req.Filename,
				"attempts", attempt,
				"strict_valid", out.StrictValid,
				"elapsed_ms", out.Elapsed.Milliseconds(),
			)
			return out, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return RawExtraction{}, ctxErr
		}
		if !IsRetryable(err) {
			a.logger.Error("llm.extract.permanent_error", "file", req.Filename, "attempt", attempt, "error", err)
			break
		}
		if attempt < a.cfg.Retry.MaxAttempts {
			backoff := a.cfg.Retry.Backoff(attempt - 1)
			a.logger.Warn("llm.extract.retry",
				"file", req.Filename,
				"attempt", attempt,
				"max_attempts", a.cfg.Retry.MaxAttempts,
				"backoff_ms", backoff.Milliseconds(),
				"error", err,
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return RawExtraction{}, err
			}
		}
	}

	return RawExtraction{Attempts: attempt}, fmt.Errorf("%w after %d attempt(s): %w", ErrExtractionFailed, attempt, lastErr)
}

func (a *Adapter) attempt(ctx context.Context, req ExtractRequest, vreq VisionRequest, prompt string, attempt int) (RawExtraction, error) {
	callStart := time.Now()
	rec := CallRecord{
		RequestID:  uuid.New().String(),
		RunID:      common.RunIDFromContext(ctx),
		Timestamp:  callStart.UTC(),
		Filename:   req.Filename,
		Attempt:    attempt,
		Model:      a.cfg.Model,
		PromptHash: PromptHash(prompt),
		Prompt:     prompt,
	}
	defer func() {
		rec.Elapsed = time.Since(callStart)
		a.calls.LogCall(ctx, rec)
	}()

	resp, err := a.completer.Complete(ctx, vreq)
	if err != nil {
		rec.Error = err.Error()
		return RawExtraction{}, err
	}
	if resp.RequestID != "" {
		rec.RequestID = resp.RequestID
	}
	if resp.Model != "" {
		rec.Model = resp.Model
	}
	rec.Response = resp.Content
	rec.PromptTokens, rec.CompletionTokens = resp.PromptTokens, resp.CompletionTokens
	if rec.PromptTokens == 0 && rec.CompletionTokens == 0 {
		rec.PromptTokens, rec.CompletionTokens = EstimateTokens(prompt), EstimateTokens(resp.Content)
		rec.TokensEstimated = true
	}

	content, doc, notes, err := NormalizeAndSanitizeJSON([]byte(resp.Content), a.logger)
	if err != nil {
		rec.Error = err.Error()
		return RawExtraction{}, err
	}

	strict := a.compiled.Validate(doc) == nil
	if !strict {
		a.logger.Warn("llm.extract.schema_mismatch", "file", req.Filename, "attempt", attempt, "notes", len(notes))
	}

	return RawExtraction{
		Doc:         doc,
		Content:     content,
		StrictValid: strict,
		Model:       rec.Model,
		Notes:       notes,
	}, nil
}
