// Package speech announces recognized labels through an external
// text-to-speech command such as espeak or say.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ayusman/handsign/internal/logging"
)

var (
	// ErrDisabled is returned when no speech command is configured.
	ErrDisabled = errors.New("speech is disabled")
	// ErrNothingToSay is returned when no words remain after filtering.
	ErrNothingToSay = errors.New("nothing to say")
	// ErrTimeout is returned when the command outlives the speaker's timeout.
	ErrTimeout = errors.New("speech command timed out")
)

// DefaultTimeout bounds a single Speak call when none is configured.
const DefaultTimeout = 5 * time.Second

// Speaker runs a text-to-speech command with the text as its final argument.
type Speaker struct {
	command string
	args    []string
	timeout time.Duration
}

// NewSpeaker creates a Speaker. An empty command yields a disabled Speaker.
func NewSpeaker(command string, args []string, timeout time.Duration) *Speaker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Speaker{
		command: command,
		args:    append([]string(nil), args...),
		timeout: timeout,
	}
}

// Enabled reports whether a command is configured.
func (s *Speaker) Enabled() bool {
	return s != nil && s.command != ""
}

// Text joins labels into the sentence Speak would say. Empty labels and the
// "none" placeholder are skipped.
func Text(labels []string) string {
	words := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || strings.EqualFold(l, "none") {
			continue
		}
		words = append(words, l)
	}
	return strings.Join(words, " ")
}

// Speak says labels and returns the spoken text.
func (s *Speaker) Speak(ctx context.Context, labels []string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	text := Text(labels)
	if text == "" {
		return "", ErrNothingToSay
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("speech command failed: %w, stderr: %s", err, msg)
		}
		return "", fmt.Errorf("speech command failed: %w", err)
	}

	logging.Debug().Str("text", text).Msg("Spoke labels")
	return text, nil
}
