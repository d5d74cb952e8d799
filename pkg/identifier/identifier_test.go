package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	id, err := New("AppServer")
	require.NoError(t, err)
	assert.Equal(t, "AppServer", id.String())

	_, err = New("waytoolongidentifier")
	assert.Error(t, err, "should reject identifiers over 10 characters")

	_, err = New("bad-char")
	assert.Error(t, err, "should reject characters outside the alphabet")

	id, err = New("")
	require.NoError(t, err)
	assert.True(t, id.IsZero())
}

func TestClean(t *testing.T) {
	assert.Equal(t, Identifier("badchar"), Clean("bad-char"))
	assert.Equal(t, Identifier("waytoolong"), Clean("waytoolongidentifier"))
	assert.Equal(t, Identifier(""), Clean("###"))
}

func TestValueDistinctness(t *testing.T) {
	ids := []string{"", "_", "A", "App", "App_", "helloWrld", "helloWrle", "0123456789"}
	seen := make(map[uint64]string)
	for _, s := range ids {
		v := Value(s)
		prev, dup := seen[v]
		require.False(t, dup, "value collision between %q and %q", prev, s)
		seen[v] = s
	}
}

func TestValueStable(t *testing.T) {
	// The encoding is a stable wire-level contract; it must not drift.
	assert.Equal(t, Value("duration"), Identifier("duration").Value())
	assert.NotEqual(t, Value("duration"), Value("durationX"))
}
