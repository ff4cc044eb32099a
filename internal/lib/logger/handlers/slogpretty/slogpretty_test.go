package slogpretty

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"vidhub/internal/lib/sl"
)

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelInfo}}
	log := slog.New(opts.NewPrettyHandler(&buf)).With(slog.String("op", "auth.Login"))

	log.Debug("hidden")
	log.Warn("invalid password", sl.Err(errors.New("mismatch")))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN:")
	assert.Contains(t, out, "invalid password")
	assert.Contains(t, out, `"op": "auth.Login"`)
	assert.Contains(t, out, `"error": "mismatch"`)
}
