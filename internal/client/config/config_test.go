package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:3000", c.ServerURL)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.NoError(t, c.Validate())
}

func TestLoad_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_url":"http://json:3000","request_timeout":"3s"}`), 0o600))

	t.Run("json only", func(t *testing.T) {
		cfg, err := load([]string{"-c", path}, map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, "http://json:3000", cfg.ServerURL)
		assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	})

	t.Run("env beats json", func(t *testing.T) {
		cfg, err := load([]string{"-c", path}, map[string]string{"GOPHAUTH_SERVER_URL": "https://env:443"})
		require.NoError(t, err)
		assert.Equal(t, "https://env:443", cfg.ServerURL)
		assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	})

	t.Run("flags beat env", func(t *testing.T) {
		cfg, err := load(
			[]string{"-c", path, "-a", "http://flag:1", "-t=1s", "-unknown", "x"},
			map[string]string{"GOPHAUTH_SERVER_URL": "https://env:443", "GOPHAUTH_REQUEST_TIMEOUT": "5s"},
		)
		require.NoError(t, err)
		assert.Equal(t, "http://flag:1", cfg.ServerURL)
		assert.Equal(t, time.Second, cfg.RequestTimeout)
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		environ map[string]string
	}{
		{"missing file", []string{"-c", filepath.Join(t.TempDir(), "nope.json")}, map[string]string{}},
		{"bad env duration", nil, map[string]string{"GOPHAUTH_REQUEST_TIMEOUT": "soon"}},
		{"bad flag duration", []string{"-t", "soon"}, map[string]string{}},
		{"relative url", []string{"-a", "localhost:3000"}, map[string]string{}},
		{"zero timeout", []string{"-t", "0s"}, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.args, tt.environ)
			assert.Error(t, err)
		})
	}
}
