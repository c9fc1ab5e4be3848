package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want PeerID
	}{
		{"room-42:abc", "roomG42Gabc"},
		{"abcXYZ019", "abcXYZ019"},
		{"", ""},
		{"a b", "aGb"},
		{"---", "GGG"},
		{"é1", "G1"},
		{"user@example.com", "userGexampleGcom"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			assert.Equal(t, c.want, Sanitize(c.in))
		})
	}
}

func TestSanitizeCharsetAndIdempotence(t *testing.T) {
	inputs := []string{"room-42:abc", "  ", "日本語", "a\x00b", "Zz9_-.", strings.Repeat("/", 100)}
	for _, in := range inputs {
		once := Sanitize(in)
		for _, r := range string(once) {
			assert.True(t, isAlnum(r), "rune %q in %q", r, once)
		}
		assert.Equal(t, once, Sanitize(string(once)))
		assert.Equal(t, len([]rune(in)), len([]rune(string(once))))
	}
}

func TestPeerIDValidate(t *testing.T) {
	require.NoError(t, PeerID("abc123").Validate())
	assert.ErrorIs(t, PeerID("").Validate(), ErrPeerIDEmpty)
	assert.ErrorIs(t, PeerID("a-b").Validate(), ErrPeerIDInvalid)
	assert.ErrorIs(t, PeerID(strings.Repeat("a", MaxPeerIDLen+1)).Validate(), ErrPeerIDTooLong)
}

func TestDirectionText(t *testing.T) {
	b, err := json.Marshal(map[string]Direction{"d": Inbound})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"inbound"}`, string(b))
	assert.Equal(t, "outbound", Outbound.String())
}

func TestErrorForKind(t *testing.T) {
	err := ErrorForKind(SignalErrUnavailableID)
	assert.ErrorIs(t, err, ErrSignaling)
	assert.ErrorIs(t, err, ErrIDTaken)

	err = ErrorForKind(SignalErrPeerUnavailable)
	assert.ErrorIs(t, err, ErrPeerUnavailable)

	err = ErrorForKind("boom")
	assert.ErrorIs(t, err, ErrSignaling)
	assert.Contains(t, err.Error(), "boom")
}
