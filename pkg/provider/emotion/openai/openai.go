// Package openai provides an emotion classifier backed by an OpenAI-compatible
// chat completion API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/hearth/pkg/provider/emotion"
)

// Compile-time assertion that Classifier satisfies emotion.Classifier.
var _ emotion.Classifier = (*Classifier)(nil)

// DefaultModel is used when New is called with an empty model.
const DefaultModel = "gpt-4o-mini"

// Classifier asks a chat model to label text with one emotion category.
type Classifier struct {
	client oai.Client
	model  string
	prompt string
}

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Classifier.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Classifier.
func New(apiKey, model string, opts ...Option) (*Classifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("emotion openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{timeout: 10 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	labels := make([]string, len(emotion.Categories))
	for i, c := range emotion.Categories {
		labels[i] = string(c)
	}
	return &Classifier{
		client: oai.NewClient(reqOpts...),
		model:  model,
		prompt: "Classify the emotion expressed by the user's sentence. " +
			"Answer with exactly one word from this list: " + strings.Join(labels, ", ") + ".",
	}, nil
}

// Classify implements emotion.Classifier. Labels outside the category set
// fall back to neutral.
func (c *Classifier) Classify(ctx context.Context, text string) (emotion.Category, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(c.prompt),
			oai.UserMessage(text),
		},
		Temperature:         param.NewOpt(0.0),
		MaxCompletionTokens: param.NewOpt(int64(4)),
	})
	if err != nil {
		return emotion.Neutral, fmt.Errorf("emotion openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return emotion.Neutral, fmt.Errorf("emotion openai: empty choices in response")
	}

	label := resp.Choices[0].Message.Content
	cat, ok := emotion.Parse(label)
	if !ok {
		slog.Debug("emotion openai: unrecognised label", "label", label)
	}
	return cat, nil
}
