package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/convostore/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DefaultTimeout = 30 * time.Second
)

// ErrGenerationFailed is wrapped by every failed Result, whatever the provider said.
var ErrGenerationFailed = errors.New("generation failed")

// Turn is the minimal view of a message handed to the model.
type Turn struct {
	Role    string
	Content string
}

// Result is either generated text or a failure. Err always wraps ErrGenerationFailed.
type Result struct {
	Text string
	Err  error
}

func (r Result) Failed() bool { return r.Err != nil }

func Success(text string) Result {
	return Result{Text: text}
}

func Failure(cause error) Result {
	return Result{Err: fmt.Errorf("%w: %w", ErrGenerationFailed, cause)}
}

// Generator produces the next reply for an ordered history.
type Generator interface {
	Generate(ctx context.Context, history []Turn) Result
}

type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client adapts a langchaingo model to Generator.
type Client struct {
	llm     llms.Model
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "", ProviderOpenAI:
		token := cfg.APIKey
		if token == "" {
			// OpenAI-compatible local servers ignore the token but the client insists on one.
			token = "fake"
		}
		opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s client: %w", cfg.Provider, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClient(model, timeout), nil
}

// NewClient wraps an existing model. A zero timeout leaves calls unbounded.
func NewClient(model llms.Model, timeout time.Duration) *Client {
	return &Client{llm: model, timeout: timeout}
}

// Generate calls the model exactly once. Provider errors, timeouts, panics and
// empty completions all come back as a failed Result.
func (c *Client) Generate(ctx context.Context, history []Turn) (res Result) {
	if len(history) == 0 {
		return Failure(errors.New("empty history"))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Errorf("provider panic: %v", r))
		}
	}()

	resp, err := c.llm.GenerateContent(ctx, messageContents(history))
	if err != nil {
		return Failure(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Failure(errors.New("provider returned no choices"))
	}

	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return Failure(errors.New("provider returned empty content"))
	}
	return Success(text)
}

func messageContents(history []Turn) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, t := range history {
		out = append(out, llms.TextParts(chatMessageType(t.Role), t.Content))
	}
	return out
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case models.RoleUser:
		return llms.ChatMessageTypeHuman
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeGeneric
	}
}

var _ Generator = (*Client)(nil)
