package log_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/harveysanders/meanstoend/log"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestSustainedMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	w := log.SustainedMultiWriter(&a, failingWriter{}, log.SustainedMultiWriter(&b))

	n, err := w.Write([]byte("hello"))
	require.Error(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "hello", a.String())
	require.Equal(t, "hello", b.String(), "writers after a failure still receive data")
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, slog.LevelDebug).With("name", "test")

	ctx := context.WithValue(context.Background(), log.KeyConnID, slog.Uint64("conn", 7))
	ctx = context.WithValue(ctx, log.KeySessionID, "not an attr")
	logger.InfoContext(ctx, "client connected")

	out := buf.String()
	require.Contains(t, out, "msg=\"client connected\"")
	require.Contains(t, out, "name=test")
	require.Contains(t, out, "conn=7")
	require.NotContains(t, out, "not an attr")
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		raw  string
		want slog.Level
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: " INFO ", want: slog.LevelInfo},
		{raw: "warn", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
	}
	for _, tc := range testCases {
		got, err := log.ParseLevel(tc.raw)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := log.ParseLevel("loud")
	require.Error(t, err)
}
