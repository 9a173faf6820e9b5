// Package llm is a minimal chat-completions-style HTTP client (spec.md
// §6.4): the stage executors are the LLM provider's only caller, and the
// provider itself is out of scope (spec.md Non-goals) — this client exists
// only to give every stage a uniform way to issue one request and parse
// its JSON-object response.
//
// Grounded on the teacher's oracle HTTPResolver
// (internal/app/services/oracle/resolver_http.go): bare *http.Client,
// context-scoped timeout, status-code branching into retryable vs fatal,
// body-size limiting. No chat-completions SDK appears anywhere in the
// retrieval pack, so this is built directly on net/http — the
// justification recorded in DESIGN.md.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// Config names the model and endpoint a stage invokes its LLM through.
type Config struct {
	Model            string
	Endpoint         string
	APIKey           string
	SystemPrompt     string
	UserPromptTmpl   string
	Timeout          time.Duration
}

// Message is one chat-completions message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat responseFormat  `json:"response_format"`
}

type choice struct {
	Message Message `json:"message"`
}

type usagePayload struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type response struct {
	Choices []choice     `json:"choices"`
	Usage   usagePayload `json:"usage"`
}

// Usage mirrors the Stage Executor contract's token accounting (spec.md
// §4.E).
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

const defaultBodyLimit = 4 << 20 // 4 MiB

// Client issues one chat-completions request and parses the reply as a
// JSON object into out.
type Client struct {
	http  *http.Client
	log   *logger.Logger
	retry core.RetryPolicy
}

// NewClient constructs a Client. httpClient may be nil for a sensible
// default.
func NewClient(httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("llm-client")
	}
	return &Client{http: httpClient, log: log, retry: core.DefaultRetryPolicy}
}

// WithRetryPolicy overrides the attempt budget and backoff applied to
// transient upstream failures (transport errors, 5xx), matching the
// teacher's WithDispatcherRetry idiom. This is the stage-local retry
// spec.md §7 leaves to "the executor's concern" — the Runner itself never
// retries a returned StageFailure. 4xx responses are never retried here:
// they are the provider telling us the request itself is wrong, not that
// it is temporarily unavailable.
func (c *Client) WithRetryPolicy(policy core.RetryPolicy) *Client {
	if policy.Attempts <= 0 {
		policy = core.DefaultRetryPolicy
	}
	c.retry = policy
	return c
}

// Complete sends systemPrompt + userPrompt to cfg's endpoint and unmarshals
// the first choice's content into out (a JSON object, per response_format).
func (c *Client) Complete(ctx context.Context, cfg Config, userPrompt string, out interface{}) (Usage, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(request{
		Model: cfg.Model,
		Messages: []Message{
			{Role: "system", Content: cfg.SystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Usage{}, fmt.Errorf("encode llm request: %w", err)
	}

	start := time.Now()

	var raw []byte
	var fatalErr error
	err = core.Retry(ctx, c.retry, func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
		if reqErr != nil {
			fatalErr = fmt.Errorf("build llm request: %w", reqErr)
			return nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}

		resp, doErr := c.http.Do(httpReq)
		if doErr != nil {
			return fmt.Errorf("execute llm request: %w", doErr)
		}
		defer resp.Body.Close()

		limited := io.LimitReader(resp.Body, defaultBodyLimit)
		respBody, readErr := io.ReadAll(limited)
		if readErr != nil {
			return fmt.Errorf("read llm response: %w", readErr)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("llm provider returned status %d: %s", resp.StatusCode, truncate(respBody, 500))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			fatalErr = fmt.Errorf("llm provider returned status %d: %s", resp.StatusCode, truncate(respBody, 500))
			return nil
		}

		raw = respBody
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	if fatalErr != nil {
		return Usage{}, fatalErr
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Usage{}, fmt.Errorf("decode llm response envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Usage{}, fmt.Errorf("llm response contained no choices")
	}
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), out); err != nil {
		return Usage{}, fmt.Errorf("decode llm message content: %w", err)
	}

	logger.FromContext(ctx).WithField("model", cfg.Model).WithField("duration", time.Since(start)).Debug("llm completion succeeded")

	return Usage{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		TotalTokens:  parsed.Usage.TotalTokens,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
