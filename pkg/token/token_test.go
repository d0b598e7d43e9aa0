package token_test

import (
	"testing"

	"github.com/arzzra/conf_call/pkg/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeToken собирает подписанный capability токен для тестов.
func makeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err, "Should sign test token")
	return raw
}

func TestParseCapabilityToken(t *testing.T) {
	raw := makeToken(t, jwt.MapClaims{
		"iss":   "AC1234567890",
		"scope": "scope:client:incoming?clientName=alice scope:client:outgoing?appSid=AP42",
	})

	cred, err := token.Parse(raw)
	require.NoError(t, err, "Should parse capability token")

	assert.Equal(t, "alice", cred.Address())
	assert.Equal(t, "AC1234567890", cred.AccountSID())
	assert.Equal(t, raw, cred.Raw())
}

func TestParseTokenWithoutIncomingScope(t *testing.T) {
	raw := makeToken(t, jwt.MapClaims{
		"iss":   "AC1234567890",
		"scope": "scope:client:outgoing?appSid=AP42",
	})

	_, err := token.Parse(raw)
	assert.Error(t, err, "Token without incoming scope should fail")
}

func TestParseTokenWithoutClientName(t *testing.T) {
	raw := makeToken(t, jwt.MapClaims{
		"iss":   "AC1234567890",
		"scope": "scope:client:incoming?foo=bar",
	})

	_, err := token.Parse(raw)
	assert.Error(t, err, "Incoming scope without clientName should fail")
}

func TestParseMalformedToken(t *testing.T) {
	_, err := token.Parse("not-a-jwt")
	assert.Error(t, err)

	_, err = token.Parse("")
	assert.Error(t, err)
}

func TestNewCredential(t *testing.T) {
	cred := token.NewCredential("bob", "AC99")
	assert.Equal(t, "bob", cred.Address())
	assert.Equal(t, "AC99", cred.AccountSID())
	assert.Empty(t, cred.Raw())
}
