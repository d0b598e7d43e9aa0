package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) *SIPUserAgent {
	t.Helper()
	u, err := NewSIPUserAgent(Config{
		Registrar:  "sip.example.com:5060",
		ListenAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func TestResolveTargetBareName(t *testing.T) {
	u := newTestAgent(t)

	uri, err := u.resolveTarget("bob")
	require.NoError(t, err)
	assert.Equal(t, "sip", uri.Scheme)
	assert.Equal(t, "bob", uri.User)
	assert.Equal(t, "sip.example.com", uri.Host)
	assert.Equal(t, 5060, uri.Port)
}

func TestResolveTargetFullURI(t *testing.T) {
	u := newTestAgent(t)

	uri, err := u.resolveTarget("sip:carol@calls.example.com:5080")
	require.NoError(t, err)
	assert.Equal(t, "carol", uri.User)
	assert.Equal(t, "calls.example.com", uri.Host)
	assert.Equal(t, 5080, uri.Port)
}

func TestResolveTargetEmpty(t *testing.T) {
	u := newTestAgent(t)

	_, err := u.resolveTarget("")
	require.Error(t, err)
}

func TestURIFromHeaderValue(t *testing.T) {
	uri := uriFromHeaderValue("<sip:bob@example.com:5060>")
	require.NotNil(t, uri)
	assert.Equal(t, "bob", uri.User)
	assert.Equal(t, "example.com", uri.Host)

	uri = uriFromHeaderValue("sip:carol@example.com")
	require.NotNil(t, uri)
	assert.Equal(t, "carol", uri.User)

	assert.Nil(t, uriFromHeaderValue("not a uri"))
}

func TestNewTag(t *testing.T) {
	a, b := newTag(), newTag()
	assert.Len(t, a, 10)
	assert.Len(t, b, 10)
	assert.NotEqual(t, a, b)
}

func TestAgentRegisteredProjection(t *testing.T) {
	u := newTestAgent(t)
	assert.False(t, u.Registered())
	assert.Nil(t, u.Credential())
}
