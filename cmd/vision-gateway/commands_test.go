// ABOUTME: Tests for CLI helpers: listen-address rewriting, prompts and config paths
// ABOUTME: Uses temp env vars so the user's real config is never touched

package main

import (
	"bufio"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0.0.0.0:8080", "127.0.0.1:8080"},
		{":50051", "127.0.0.1:50051"},
		{"[::]:8080", "127.0.0.1:8080"},
		{"10.0.0.5:8080", "10.0.0.5:8080"},
		{"not-an-addr", "not-an-addr"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, localAddr(tt.in))
		})
	}
}

func TestPrompt(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("custom\n\n"))
	assert.Equal(t, "custom", prompt(reader, "q", "default"))
	assert.Equal(t, "default", prompt(reader, "q", "default"))
	// EOF falls back to the default.
	assert.Equal(t, "fallback", prompt(reader, "q", "fallback"))
}

func TestIsYes(t *testing.T) {
	assert.True(t, isYes("y"))
	assert.True(t, isYes(" YES "))
	assert.False(t, isYes("no"))
	assert.False(t, isYes(""))
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("VISION_CONFIG", "/etc/vision.yaml")
	assert.Equal(t, "/etc/vision.yaml", getConfigPath())

	dir := t.TempDir()
	t.Setenv("VISION_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "vision", "gateway.yaml"), getConfigPath())
}

func TestAdminToken(t *testing.T) {
	t.Setenv("VISION_ADMIN_TOKEN", "")
	_, err := adminToken("")
	assert.Error(t, err)

	tok, err := adminToken("flag-token")
	assert.NoError(t, err)
	assert.Equal(t, "flag-token", tok)

	t.Setenv("VISION_ADMIN_TOKEN", "env-token")
	tok, err = adminToken("")
	assert.NoError(t, err)
	assert.Equal(t, "env-token", tok)
}
