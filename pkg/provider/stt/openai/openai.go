// Package openai provides an online STT provider backed by the OpenAI audio
// transcription API (or any server exposing the same endpoint).
//
// Usage:
//
//	p, err := openai.New(apiKey, "whisper-1")
//	text, err := p.Recognize(ctx, clip, stt.Config{Language: "en"})
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/hearth/pkg/audio"
	"github.com/MrWong99/hearth/pkg/provider/stt"
)

// DefaultModel is used when New is called with an empty model.
const DefaultModel = "whisper-1"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider transcribes clips through the audio transcription endpoint.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default language code used when a request carries
// none.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("stt openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{timeout: 30 * time.Second}
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
	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// wavFile names the uploaded multipart part.
type wavFile struct {
	*bytes.Reader
}

func (wavFile) Filename() string    { return "audio.wav" }
func (wavFile) ContentType() string { return "audio/wav" }

// Recognize implements stt.Provider.
func (p *Provider) Recognize(ctx context.Context, clip audio.Clip, cfg stt.Config) (string, error) {
	if clip.Empty() {
		return "", stt.ErrUnintelligible
	}
	params := oai.AudioTranscriptionNewParams{
		File:  wavFile{bytes.NewReader(audio.EncodeWAV(clip.PCM, clip.SampleRate, clip.Channels))},
		Model: oai.AudioModel(p.model),
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = param.NewOpt(lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("stt openai: transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", stt.ErrUnintelligible
	}
	return text, nil
}
