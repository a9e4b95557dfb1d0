package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("INFO")

	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"Error", LevelError},
		{"info", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			SetLevel(tt.input)
			assert.Equal(t, tt.expected, GetLevel())
		})
	}
}

func TestSetLevel_UnknownKeepsCurrent(t *testing.T) {
	defer SetLevel("INFO")

	SetLevel("WARN")
	SetLevel("verbose")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestInit_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fragments.log")

	require.NoError(t, Init(Config{Level: "DEBUG", Format: "json", Output: path}))
	defer func() {
		require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: "stdout"}))
	}()

	Debug("fragment %s stored", "abc")
	With("owner", "o1").Info("listing")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"msg":"fragment abc stored"`)
	assert.Contains(t, lines[1], `"owner":"o1"`)
}

func TestInit_BadPath(t *testing.T) {
	err := Init(Config{Level: "INFO", Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
