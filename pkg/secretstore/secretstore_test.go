package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	got, err := ParseKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey("0x" + hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseKey(hex.EncodeToString(raw[:16]))
	assert.Error(t, err, "16-byte keys are rejected")

	_, err = ParseKey("not-a-key")
	assert.Error(t, err)
}

func TestStore_SetGetRoundtrip(t *testing.T) {
	s, err := Open(OpenOptions{Path: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetString(KeyLedgerAPIKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetString(KeyLedgerAPIKey, "sk-live-1234"))

	val, found, err := s.GetString(KeyLedgerAPIKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sk-live-1234", val)
}

func TestStore_EmptyValueIsFound(t *testing.T) {
	s, err := Open(OpenOptions{Path: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetString("k", ""))
	val, found, err := s.GetString("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, val)
}
