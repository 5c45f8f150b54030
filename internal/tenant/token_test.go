package tenant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	raw, err := GenerateToken()
	require.NoError(t, err)
	assert.True(t, IsServiceToken(raw))

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

func TestTokenMatches(t *testing.T) {
	t.Parallel()

	raw, err := GenerateToken()
	require.NoError(t, err)

	tok := &ServiceToken{TokenHash: HashToken(raw)}
	assert.True(t, tok.Matches(raw))
	assert.False(t, tok.Matches(raw+"x"))
	assert.False(t, tok.Matches("svc_other"))
}

func TestHasScope(t *testing.T) {
	t.Parallel()

	scopes := func(ss ...string) json.RawMessage {
		b, _ := json.Marshal(ss)
		return b
	}

	tok := &ServiceToken{Scopes: scopes("ext", "reports")}
	assert.True(t, tok.HasScope("ext"))
	assert.True(t, tok.HasScope(""))
	assert.False(t, tok.HasScope("admin"))

	wild := &ServiceToken{Scopes: scopes("*")}
	assert.True(t, wild.HasScope("anything"))

	broken := &ServiceToken{Scopes: json.RawMessage(`not json`)}
	assert.False(t, broken.HasScope("ext"))
}
