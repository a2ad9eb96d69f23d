package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kousskous/menu-extractor/internal/llm"
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Messages       []message      `json:"messages"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements llm.VisionCompleter with one chat/completions call
// carrying the system prompt, the user prompt and the page image.
func (c *Client) Complete(ctx context.Context, req llm.VisionRequest) (llm.VisionResponse, error) {
	start := time.Now()

	user := []contentPart{{Type: "text", Text: req.UserPrompt}}
	if req.ImageDataURL != "" {
		user = append(user, contentPart{Type: "image_url", ImageURL: &imageURL{URL: req.ImageDataURL}})
	}
	msgs := []message{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: user},
	}
	if req.JSONSchema != nil && !c.cfg.DisableSchema {
		msgs = append(msgs, message{Role: "system", Content: "JSON Schema:\n" + mustJSON(req.JSONSchema)})
	}

	body := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages:    msgs,
	}
	if !c.cfg.DisableSchema {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"X-Title":       c.cfg.Title,
	}
	if c.cfg.Referer != "" {
		headers["HTTP-Referer"] = c.cfg.Referer
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.complete.http_error",
			"model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResponse{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error",
			"error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResponse{}, fmt.Errorf("%w: decode provider response: %v", llm.ErrMalformedOutput, err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices",
			"raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.VisionResponse{}, fmt.Errorf("%w: no choices in provider response", llm.ErrMalformedOutput)
	}

	model := cc.Model
	if model == "" {
		model = c.cfg.Model
	}
	c.logger.Debug("llm.complete.ok",
		"req_id", cc.ID,
		"model", model,
		"finish_reason", cc.Choices[0].FinishReason,
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.VisionResponse{
		RequestID:        cc.ID,
		Model:            model,
		Content:          strings.TrimSpace(cc.Choices[0].Message.Content),
		PromptTokens:     cc.Usage.PromptTokens,
		CompletionTokens: cc.Usage.CompletionTokens,
	}, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
