package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishbucket/internal/config"
)

func TestSetupWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wishbucket.log")

	closer := Setup(&config.Config{LogLevel: "debug", LogFormat: "json", LogFile: path, LogMaxSizeMB: 1})
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
		log.SetLevel(log.InfoLevel)
	})

	assert.Equal(t, log.DebugLevel, log.GetLevel())
	log.WithField("component", "test").Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestSetupFallsBackToInfo(t *testing.T) {
	closer := Setup(&config.Config{LogLevel: "loud"})
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	assert.Equal(t, log.InfoLevel, log.GetLevel())
	assert.NoError(t, closer.Close())
}
