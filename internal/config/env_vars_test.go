package config_test

import (
	"testing"

	"github.com/jrsteele09/go-token-service/internal/config"
	"github.com/stretchr/testify/require"
)

func TestGetPortAddsColonPrefix(t *testing.T) {
	t.Setenv("PORT", "9090")
	require.Equal(t, ":9090", config.EnvVars{}.GetPort())
}

func TestGetPortKeepsColonPrefix(t *testing.T) {
	t.Setenv("PORT", ":9090")
	require.Equal(t, ":9090", config.EnvVars{}.GetPort())
}

func TestGetPortDefault(t *testing.T) {
	t.Setenv("PORT", "")
	require.Equal(t, ":8080", config.EnvVars{}.GetPort())
}
