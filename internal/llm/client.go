// Package llm is the single typed conduit to the chat-completion endpoint.
// It owns timeouts, retry with backoff, JSON-mode handling, and token-usage
// event emission. It keeps no state beyond the request scope.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pilot/internal/config"
	errs "pilot/internal/errors"
	"pilot/internal/event"
	"pilot/internal/observability"
	"pilot/internal/shared/jsonx"
	"pilot/internal/shared/logging"
	tokenutil "pilot/internal/shared/token"
	"pilot/internal/tool"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultAPIVersion  = "2024-02-15-preview"
	componentName      = "llm"
	chatCompletionPath = "/chat/completions"
)

// Client is a thread-safe handle to one chat-completion endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	apiVersion string
	azure      bool
	timeout    time.Duration
	retry      errs.RetryConfig
	bus        *event.Bus
	logger     logging.Logger
}

// NewClient builds a client from resolved configuration.
func NewClient(cfg *config.Config, bus *event.Bus, logger logging.Logger) *Client {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := errs.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	return &Client{
		httpClient: &http.Client{}, // per-attempt deadline comes from the context
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		azure:      cfg.Azure,
		timeout:    timeout,
		retry:      retry,
		bus:        bus,
		logger:     logging.OrNop(logger),
	}
}

// wire types (OpenAI-compatible chat completion)

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Tools          []wireTool     `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the request and returns the assistant content. In ForceJSON mode
// the response has code fences and surrounding prose stripped; the JSON is
// never repaired here. The input request is not mutated.
func (c *Client) Chat(ctx context.Context, runID string, req Request) (string, error) {
	start := time.Now()

	content, usage, err := errsRetry(ctx, c, runID, req)
	if err != nil {
		observability.ObserveLLMRequest("error")
		base := event.NewBase(runID)
		c.bus.Publish(&event.Error{Base: base, Component: componentName, Err: err.Error(), Final: true})
		return "", err
	}

	observability.ObserveLLMRequest("ok")
	observability.AddTokens(usage.Input, usage.Output)
	c.bus.Publish(&event.TokenUsage{
		Base:   event.NewBase(runID),
		Model:  c.model,
		Input:  usage.Input,
		Output: usage.Output,
		Total:  usage.Total,
	})

	if d := time.Since(start); d > 5*time.Second {
		c.logger.Debug("chat completed after %v", d)
	}

	if req.ForceJSON {
		content = StripJSONFraming(content)
	}
	return content, nil
}

func errsRetry(ctx context.Context, c *Client, runID string, req Request) (string, Usage, error) {
	type chatResult struct {
		content string
		usage   Usage
	}
	res, err := errs.RetryWithResult(ctx, c.retry, func(ctx context.Context) (chatResult, error) {
		content, usage, err := c.doRequest(ctx, runID, req)
		return chatResult{content: content, usage: usage}, err
	}, c.logger, func(attempt, maxAttempts int) {
		c.bus.Publish(&event.Retry{
			Base:       event.NewBase(runID),
			Component:  componentName,
			Attempt:    attempt,
			MaxRetries: maxAttempts,
		})
	})
	return res.content, res.usage, err
}

// doRequest performs a single attempt with its own deadline.
func (c *Client) doRequest(ctx context.Context, runID string, req Request) (string, Usage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := jsonx.Marshal(c.buildWireRequest(req))
	if err != nil {
		return "", Usage{}, errs.NewPermanentError(err, "marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.requestURL(), bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, errs.NewPermanentError(err, "build chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.azure {
		httpReq.Header.Set("api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || (attemptCtx.Err() == context.DeadlineExceeded) {
			c.bus.Publish(&event.Timeout{Base: event.NewBase(runID), Component: componentName, After: c.timeout})
			return "", Usage{}, &errs.TransientError{
				Err:     errs.New(errs.KindTimeout, "chat call exceeded %v", c.timeout),
				Message: fmt.Sprintf("timeout: chat call exceeded %v", c.timeout),
			}
		}
		return "", Usage{}, err // net errors classify as transient downstream
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close response body: %v", closeErr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, err
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 300))
		if errs.IsTransientHTTPStatus(resp.StatusCode) {
			return "", Usage{}, &errs.TransientError{Err: errors.New(msg), StatusCode: resp.StatusCode, Message: msg}
		}
		return "", Usage{}, &errs.PermanentError{Err: errors.New(msg), StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed wireResponse
	if err := jsonx.Unmarshal(raw, &parsed); err != nil {
		return "", Usage{}, errs.NewPermanentError(err, "decode chat response")
	}
	if parsed.Error != nil {
		return "", Usage{}, errs.NewPermanentError(errors.New(parsed.Error.Message), parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", Usage{}, errs.NewPermanentError(errors.New("no choices in response"), "no choices in response")
	}

	content := parsed.Choices[0].Message.Content
	usage := Usage{
		Input:  parsed.Usage.PromptTokens,
		Output: parsed.Usage.CompletionTokens,
		Total:  parsed.Usage.TotalTokens,
	}
	if usage.Total == 0 {
		// Some gateways omit usage; estimate so cost tracking stays honest.
		for _, m := range req.Messages {
			usage.Input += tokenutil.EstimateFast(m.Content)
		}
		usage.Output = tokenutil.EstimateFast(content)
		usage.Total = usage.Input + usage.Output
	}
	return content, usage, nil
}

func (c *Client) requestURL() string {
	if c.azure {
		version := c.apiVersion
		if version == "" {
			version = defaultAPIVersion
		}
		return fmt.Sprintf("%s/openai/deployments/%s%s?api-version=%s",
			c.endpoint, url.PathEscape(c.model), chatCompletionPath, url.QueryEscape(version))
	}
	return c.endpoint + chatCompletionPath
}

func (c *Client) buildWireRequest(req Request) wireRequest {
	// Copy messages so the caller's slice is never mutated.
	messages := make([]Message, len(req.Messages))
	copy(messages, req.Messages)

	wire := wireRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.ForceJSON {
		wire.ResponseFormat = map[string]any{"type": "json_object"}
	} else {
		wire.Tools = toWireTools(req.Tools)
	}
	return wire
}

func toWireTools(schemas []tool.Schema) []wireTool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(schemas))
	for _, s := range schemas {
		props := make(map[string]any, len(s.Parameters))
		var required []string
		for _, p := range s.Parameters {
			prop := map[string]any{"type": p.Type, "description": p.Description}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
