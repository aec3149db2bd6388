// Package command implements [tts.Provider] by running a local synthesis
// program such as espeak-ng or a piper pipeline.
//
// The argument template may contain the placeholders {text}, {voice} and
// {rate}. When {text} is absent the text is written to the program's stdin
// instead, which suits engines that read from standard input:
//
//	p, _ := command.New([]string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "{text}"})
//	err := p.Speak(ctx, "Timer finished.", tts.Voice{Name: "en-us", Rate: 160})
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/hearth/pkg/provider/tts"
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider runs one process per Speak call.
type Provider struct {
	argv         []string
	defaultVoice tts.Voice
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithDefaultVoice sets the voice used for empty fields of the per-call voice.
func WithDefaultVoice(v tts.Voice) Option {
	return func(p *Provider) { p.defaultVoice = v }
}

// New returns a Provider for the given argument template. argv[0] is the
// program to run.
func New(argv []string, opts ...Option) (*Provider, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("tts command: program must not be empty")
	}
	p := &Provider{argv: slices.Clone(argv)}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Speak runs the synthesis program and waits for it to exit.
func (p *Provider) Speak(ctx context.Context, text string, voice tts.Voice) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if voice.Name == "" {
		voice.Name = p.defaultVoice.Name
	}
	if voice.Rate == 0 {
		voice.Rate = p.defaultVoice.Rate
	}

	args, usesStdin := p.expand(text, voice)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if usesStdin {
		cmd.Stdin = strings.NewReader(text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("tts command: %s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("tts command: %s: %w", args[0], err)
	}
	return nil
}

// expand substitutes placeholders. Arguments whose placeholder resolves to an
// empty value are dropped together with a directly preceding flag.
func (p *Provider) expand(text string, voice tts.Voice) (args []string, usesStdin bool) {
	rate := ""
	if voice.Rate > 0 {
		rate = strconv.Itoa(voice.Rate)
	}
	repl := strings.NewReplacer("{text}", text, "{voice}", voice.Name, "{rate}", rate)

	usesStdin = true
	for i, a := range p.argv {
		if strings.Contains(a, "{text}") {
			usesStdin = false
		}
		out := repl.Replace(a)
		if out == "" && a != "" {
			if i > 0 && len(args) > 0 && strings.HasPrefix(args[len(args)-1], "-") {
				args = args[:len(args)-1]
			}
			continue
		}
		args = append(args, out)
	}
	return args, usesStdin
}
