package rtc

import "encoding/binary"

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// EncodeUlaw converts 16-bit little-endian PCM to G.711 mu-law, one byte per
// sample.
func EncodeUlaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		out[i] = linearToUlaw(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

// DecodeUlaw converts G.711 mu-law to 16-bit little-endian PCM.
func DecodeUlaw(ulaw []byte) []byte {
	out := make([]byte, 2*len(ulaw))
	for i, b := range ulaw {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(ulawToLinear(b)))
	}
	return out
}

func linearToUlaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func ulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	s := ((mantissa << 3) + ulawBias) << exponent
	s -= ulawBias
	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}
