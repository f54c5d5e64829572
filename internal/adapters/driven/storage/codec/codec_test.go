package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.25, math.MaxFloat32, float32(math.Inf(-1))}

	data := EncodeVector(in)
	assert.Len(t, data, len(in)*4)

	out, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeVector_LittleEndian(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, EncodeVector([]float32{1}))
}

func TestVector_Empty(t *testing.T) {
	assert.Nil(t, EncodeVector(nil))

	out, err := DecodeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecodeVector_Truncated(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
