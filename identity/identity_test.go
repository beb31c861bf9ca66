package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var id ID
	for i := range id {
		id[i] = byte(i)
	}

	encoded, err := Encode(id)
	require.NoError(t, err)
	assert.True(t, Valid(encoded))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestDecodeRejectsWrongHRP(t *testing.T) {
	var id ID
	id[0] = 1
	encoded, err := Encode(id)
	require.NoError(t, err)

	// Swap the HRP for a different one and confirm it's rejected.
	bad := "notgossip" + encoded[len(HRP):]
	_, err = Decode(bad)
	assert.Error(t, err)
	assert.False(t, Valid(bad))
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	var id ID
	encoded, err := Encode(id)
	require.NoError(t, err)

	corrupted := []byte(encoded)
	last := corrupted[len(corrupted)-1]
	if last == 'q' {
		corrupted[len(corrupted)-1] = 'p'
	} else {
		corrupted[len(corrupted)-1] = 'q'
	}
	assert.False(t, Valid(string(corrupted)))
}

func TestStringPanicsNever(t *testing.T) {
	var id ID
	assert.NotPanics(t, func() { _ = id.String() })
}
