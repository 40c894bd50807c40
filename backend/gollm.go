package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmBackend is the production Backend. It wraps a gollm.LLM instance,
// translating between the loop's conversation model and gollm's prompt API.
type GollmBackend struct {
	provider string
	model    string
	llm      gollm.LLM
	retry    RetryPolicy
}

// NewGollmBackend resolves modelID against the catalog and constructs the
// provider client. An unknown model id is a configuration error. If apiKey is
// empty, gollm reads the provider's key from the environment.
func NewGollmBackend(modelID, apiKey string) (*GollmBackend, error) {
	if modelID == "" {
		modelID = DefaultModelID
	}
	info := Lookup(modelID)
	if info == nil {
		return nil, &ConfigurationError{BackendError: BackendError{
			Message: fmt.Sprintf("unknown model %q", modelID),
		}}
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(info.Provider),
		gollm.SetModel(info.ID),
		gollm.SetMaxTokens(4096),
		gollm.SetMaxRetries(0), // retries are handled here, not in gollm
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, &ConfigurationError{BackendError: BackendError{
			Message: fmt.Sprintf("creating %s client", info.Provider), Cause: err,
		}}
	}

	return &GollmBackend{
		provider: info.Provider,
		model:    info.ID,
		llm:      llm,
		retry:    DefaultRetryPolicy(),
	}, nil
}

// ModelID returns the resolved model identifier.
func (b *GollmBackend) ModelID() string { return b.model }

// Round starts one model round. Fragments are forwarded as the provider
// streams them; providers without streaming produce a single fragment.
func (b *GollmBackend) Round(ctx context.Context, req RoundRequest) (*RoundStream, error) {
	prompt := b.translateRequest(req)
	b.applyOptions(req.Options)

	stream := NewRoundStream(64)

	if !b.llm.SupportsStreaming() {
		go func() {
			text, err := Retry(ctx, b.retry, func(ctx context.Context) (string, error) {
				out, genErr := b.llm.Generate(ctx, prompt)
				if genErr != nil {
					return "", b.translateError(genErr)
				}
				return out, nil
			})
			if err != nil {
				stream.CloseWith(nil, err)
				return
			}
			stream.Send(text)
			stream.CloseWith(b.buildResult(req, text), nil)
		}()
		return stream, nil
	}

	tokens, err := b.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, b.translateError(err)
	}

	go func() {
		defer tokens.Close()
		var full strings.Builder
		for {
			token, err := tokens.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.CloseWith(nil, b.translateError(err))
				return
			}
			if token == nil {
				continue
			}
			stream.Send(token.Text)
			full.WriteString(token.Text)
		}
		stream.CloseWith(b.buildResult(req, full.String()), nil)
	}()

	return stream, nil
}

// translateRequest flattens the conversation into a gollm Prompt. gollm takes
// one prompt string, so assistant turns and tool results become labeled
// context lines.
func (b *GollmBackend) translateRequest(req RoundRequest) *gollm.Prompt {
	var parts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			parts = append(parts, msg.Text)
		case RoleAssistant:
			if msg.Text != "" {
				parts = append(parts, "[Assistant]: "+msg.Text)
			}
		case RoleTool:
			for _, r := range msg.ToolResults {
				prefix := "[Tool Result]"
				if r.IsError {
					prefix = "[Tool Error]"
				}
				parts = append(parts, prefix+": "+r.Output)
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Continue working toward the goal using the conversation so far."
	}

	var promptOpts []gollm.PromptOption
	if req.System != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(req.System), gollm.CacheTypeEphemeral))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyOptions forwards per-call key=value model options.
func (b *GollmBackend) applyOptions(options map[string]string) {
	for key, value := range options {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			b.llm.SetOption(key, f)
			continue
		}
		b.llm.SetOption(key, value)
	}
}

// buildResult assembles a RoundResult, extracting any tool-call JSON the
// provider embedded in the response text.
func (b *GollmBackend) buildResult(req RoundRequest, text string) *RoundResult {
	calls := parseToolCalls(text)
	cleaned := text
	if len(calls) > 0 {
		cleaned = removeToolCallJSON(text)
	}

	inputTokens := estimateTokens(req)
	return &RoundResult{
		ID:        "resp_" + uuid.New().String()[:8],
		ModelID:   b.model,
		Text:      cleaned,
		ToolCalls: calls,
		Usage: Usage{
			InputTokens:  inputTokens,
			OutputTokens: len(text) / 4,
			TotalTokens:  inputTokens + len(text)/4,
		},
	}
}

// parseToolCalls extracts tool calls that gollm returns embedded in the
// response text as a JSON array of {"name": ..., "arguments": ...} objects.
func parseToolCalls(text string) []ToolCallRequest {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolCallRequest, 0, len(rawCalls))
	for _, rc := range rawCalls {
		calls = append(calls, ToolCallRequest{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls
}

func removeToolCallJSON(text string) string {
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError classifies a gollm error into the backend taxonomy. gollm
// surfaces provider failures as opaque errors, so classification is by
// message content.
func (b *GollmBackend) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	wrap := func() ProviderError {
		return ProviderError{BackendError: BackendError{Message: msg, Cause: err}, Provider: b.provider}
	}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		pe := wrap()
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		pe := wrap()
		pe.StatusCode = 403
		return &AccessDeniedError{ProviderError: pe}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		pe := wrap()
		pe.StatusCode = 404
		return &NotFoundError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		pe := wrap()
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		pe := wrap()
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		pe := wrap()
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout"):
		return &TimeoutError{BackendError: BackendError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: wrap()}
	default:
		pe := wrap()
		pe.Retryable = true
		return &pe
	}
}

func estimateTokens(req RoundRequest) int {
	total := len(req.System) / 4
	for _, msg := range req.Messages {
		total += len(msg.Text) / 4
		for _, r := range msg.ToolResults {
			total += len(r.Output) / 4
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
