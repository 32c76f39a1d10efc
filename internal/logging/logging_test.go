package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupStderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, logger)
}

func TestRotatingWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	// maxSizeMB<=0 defaults to 10MB internally; force a tiny size for the test.
	w.maxSize = 16

	_, err = w.Write(bytes.Repeat([]byte("a"), 10))
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("b"), 10))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(path + ".1")
	require.NoError(t, err, "expected rotation to have produced server.log.1")
}

func TestGuardStdoutSuppressesWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := GuardStdout(context.Background(), logger, func() error {
		_, werr := os.Stdout.Write([]byte("noisy library output\n"))
		return werr
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "noisy library output")
	require.True(t, strings.Contains(buf.String(), "suppressed stdout write"))
}
