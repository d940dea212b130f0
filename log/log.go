package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type ContextKey string

const (
	// KeyConnID holds the slog.Attr of the connection's sequential ID.
	KeyConnID ContextKey = "github.com/harveysanders/meanstoend:connection_id"
	// KeySessionID holds the slog.Attr of the connection's session UUID.
	KeySessionID ContextKey = "github.com/harveysanders/meanstoend:session_id"
)

// From Adam Woodbeck's Networking Programming with Go
// https://github.com/awoodbeck/gnp/blob/master/ch13/writer.go
type sustainedMultiWriter struct {
	writers []io.Writer
}

func (s *sustainedMultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range s.writers {
		i, wErr := w.Write(p)
		n += i
		err = errors.Join(err, wErr)
	}

	return n, err
}

// SustainedMultiWriter is like io.MultiWriter, but keeps writing to the
// remaining writers when one of them fails.
func SustainedMultiWriter(writers ...io.Writer) io.Writer {
	mw := &sustainedMultiWriter{writers: make([]io.Writer, 0, len(writers))}

	for _, w := range writers {
		if m, ok := w.(*sustainedMultiWriter); ok {
			mw.writers = append(mw.writers, m.writers...)
			continue
		}

		mw.writers = append(mw.writers, w)
	}

	return mw
}

// ContextHandler adds the slog.Attr stored in the context under each of Keys to every record.
type ContextHandler struct {
	slog.Handler
	Keys []ContextKey
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, k := range h.Keys {
		attr, ok := ctx.Value(k).(slog.Attr)
		if !ok {
			continue
		}
		r.AddAttrs(attr)
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs), Keys: h.Keys}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name), Keys: h.Keys}
}

// New returns a text logger writing to w that includes the connection and session IDs found in the context.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(ContextHandler{
		Handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
		Keys:    []ContextKey{KeyConnID, KeySessionID},
	})
}

// ParseLevel parses a level name such as "debug", "INFO" or "warn+2".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return level, nil
}
