// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestParseConfigAppliesFlagOverrides(t *testing.T) {
	cfg, err := ParseConfig([]string{"--chat-addr", ":9999", "--rate", "2.5", "--strikes", "7"})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ChatAddr)
	assert.Equal(t, 2.5, cfg.Rate)
	assert.Equal(t, 7, cfg.Strikes)
}

func TestParseConfigYAMLLayeringWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mortalnet.yaml")
	yaml := "chat-addr: \":7000\"\nmax-clients: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := ParseConfig([]string{"--config", path, "--max-clients", "75"})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ChatAddr, "YAML value should apply")
	assert.Equal(t, 75, cfg.MaxClients, "flag should override YAML")
}

func TestValidateToleratesLoneTLSCert(t *testing.T) {
	// Omitting either TLS path just disables TLS; it is not a
	// configuration error.
	cfg := DefaultConfig()
	cfg.TLSCert = "cert.pem"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroMaxClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 0
	assert.Error(t, cfg.Validate())
}
