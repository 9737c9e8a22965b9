package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeChecksum_Deterministic(t *testing.T) {
	data := []byte("versioned log record")
	assert.Equal(t, ComputeChecksum(data), ComputeChecksum(data))
	assert.NotEqual(t, ComputeChecksum(data), ComputeChecksum([]byte("other")))
}

func TestValidateChecksum(t *testing.T) {
	data := []byte("payload")
	sum := ComputeChecksum(data)

	assert.True(t, ValidateChecksum(data, sum))
	assert.False(t, ValidateChecksum(data, sum+1))
}

func TestAppendAndStripChecksum(t *testing.T) {
	data := []byte("payload")
	framed := AppendChecksum(data)
	require.Len(t, framed, len(data)+4)

	stripped, valid := ValidateAndStripChecksum(framed)
	assert.True(t, valid)
	assert.Equal(t, data, stripped)
}

func TestValidateAndStripChecksum_Corrupted(t *testing.T) {
	framed := AppendChecksum([]byte("payload"))
	framed[0] ^= 0xff

	_, valid := ValidateAndStripChecksum(framed)
	assert.False(t, valid)
}

func TestValidateAndStripChecksum_TooShort(t *testing.T) {
	_, valid := ValidateAndStripChecksum([]byte{1, 2})
	assert.False(t, valid)
}

func TestAppendChecksum_EmptyData(t *testing.T) {
	framed := AppendChecksum(nil)
	require.Len(t, framed, 4)

	stripped, valid := ValidateAndStripChecksum(framed)
	assert.True(t, valid)
	assert.Empty(t, stripped)
}
