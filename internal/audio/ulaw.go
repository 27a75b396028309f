package audio

const ulawBias = 0x84

// DecodeULaw expands one G.711 µ-law byte to a 16-bit linear sample.
func DecodeULaw(b byte) int16 {
	u := ^b
	exponent := (u >> 4) & 0x07
	mantissa := int32(u & 0x0F)
	sample := ((mantissa << 3) + ulawBias) << exponent
	sample -= ulawBias
	if u&0x80 != 0 {
		return int16(-sample)
	}
	return int16(sample)
}
