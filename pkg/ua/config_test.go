package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/conf_call/pkg/token"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{Registrar: "sip.example.com:5060"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sip.example.com", cfg.Domain)
	assert.Equal(t, "udp", cfg.Transport)
	assert.Equal(t, "0.0.0.0:5060", cfg.ListenAddr)
	assert.Equal(t, "conf_call/1.0", cfg.UserAgent)
	assert.Equal(t, 3600, cfg.Expires)

	host, port := cfg.registrarHostPort()
	assert.Equal(t, "sip.example.com", host)
	assert.Equal(t, 5060, port)
}

func TestConfigValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty registrar", Config{}},
		{"registrar without port", Config{Registrar: "sip.example.com"}},
		{"bad registrar port", Config{Registrar: "sip.example.com:war"}},
		{"unsupported transport", Config{Registrar: "sip.example.com:5060", Transport: "sctp"}},
		{"bad listen address", Config{Registrar: "sip.example.com:5060", ListenAddr: "localhost"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestConfigValidateKeepsExplicitValues(t *testing.T) {
	cred := token.NewCredential("alice", "AC00000000000000000000000000000000")
	cfg := Config{
		Registrar:  "10.0.0.1:5070",
		Domain:     "calls.example.com",
		Transport:  "tcp",
		ListenAddr: "127.0.0.1:5080",
		UserAgent:  "test/0.1",
		Expires:    60,
		Credential: cred,
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "calls.example.com", cfg.Domain)
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, "127.0.0.1:5080", cfg.ListenAddr)
	assert.Equal(t, "test/0.1", cfg.UserAgent)
	assert.Equal(t, 60, cfg.Expires)
	assert.Same(t, cred, cfg.Credential)
}
