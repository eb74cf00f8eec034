package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	assert.Nil(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "disable", cfg.DBSSLMode)
}

func TestNewConfigInvalidSSLMode(t *testing.T) {
	if err := os.Setenv("MARKER_DB_SSL_MODE", "whatever"); err != nil {
		t.Fatal(err)
	}
	defer os.Unsetenv("MARKER_DB_SSL_MODE")

	_, err := NewConfig()
	assert.NotNil(t, err)
}
