package rtc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUlawKnownValues(t *testing.T) {
	assert.Equal(t, byte(0xFF), linearToUlaw(0))
	assert.Equal(t, byte(0x80), linearToUlaw(32767))
	assert.Equal(t, byte(0x00), linearToUlaw(-32768))
	assert.Equal(t, int16(0), ulawToLinear(0xFF))
	assert.Equal(t, int16(32124), ulawToLinear(0x80))
	assert.Equal(t, int16(-32124), ulawToLinear(0x00))
}

func TestUlawRoundTripError(t *testing.T) {
	for _, s := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000} {
		got := ulawToLinear(linearToUlaw(s))
		diff := int(got) - int(s)
		if diff < 0 {
			diff = -diff
		}
		// mu-law quantisation step grows with magnitude, ~1/16 of the segment
		limit := max(8, int(abs(s))/16)
		assert.LessOrEqual(t, diff, limit, "sample %d decoded as %d", s, got)
	}
}

func abs(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

func TestEncodeDecodeFrame(t *testing.T) {
	pcm := make([]byte, 320)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(i*100-8000)))
	}
	enc := EncodeUlaw(pcm)
	assert.Len(t, enc, 160)
	dec := DecodeUlaw(enc)
	assert.Len(t, dec, 320)
}
