package utils

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	if bitLen == 64 {
		return payload >> startBit
	}
	mask := uint64((1 << bitLen) - 1)
	return (payload >> startBit) & mask
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return payload
	}
	mask := ^uint64(0)
	if bitLen < 64 {
		mask = uint64((1 << bitLen) - 1)
	}
	payload &^= (mask << startBit)
	payload |= (value & mask) << startBit
	return payload
}

// nextMotorolaBit walks DBC sawtooth bit numbering from MSB towards LSB.
func nextMotorolaBit(pos int) int {
	if pos%8 == 0 {
		return pos + 15
	}
	return pos - 1
}

func getBitsMotorola(data []byte, startBit, bitLen int) uint64 {
	var v uint64
	pos := startBit
	for i := 0; i < bitLen; i++ {
		byteIdx := pos / 8
		if byteIdx < 0 || byteIdx >= len(data) {
			return 0
		}
		bit := (data[byteIdx] >> (pos % 8)) & 0x01
		v = v<<1 | uint64(bit)
		pos = nextMotorolaBit(pos)
	}
	return v
}

func setBitsMotorola(data []byte, startBit, bitLen int, value uint64) {
	pos := startBit
	for i := bitLen - 1; i >= 0; i-- {
		byteIdx := pos / 8
		if byteIdx < 0 || byteIdx >= len(data) {
			return
		}
		mask := byte(1) << (pos % 8)
		if (value>>i)&0x01 == 1 {
			data[byteIdx] |= mask
		} else {
			data[byteIdx] &^= mask
		}
		pos = nextMotorolaBit(pos)
	}
}

func unsignedToRawInt64(u uint64, bitLen int, signed bool) int64 {
	if !signed || bitLen >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if (u & signBit) == 0 {
		return int64(u)
	}
	fullMask := uint64((1 << bitLen) - 1)
	twos := (^u + 1) & fullMask
	return -int64(twos)
}

func rawToUnsigned(raw int64, bitLen int) uint64 {
	if raw >= 0 {
		return uint64(raw)
	}
	fullMask := ^uint64(0)
	if bitLen < 64 {
		fullMask = uint64((1 << bitLen) - 1)
	}
	u := uint64(-raw)
	return (^u + 1) & fullMask
}

func clamp(v, lo, hi float64) float64 {
	if lo == 0 && hi == 0 {
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		max := int64((1 << bitLen) - 1)
		if raw < 0 {
			return 0
		}
		if raw > max {
			return max
		}
		return raw
	}
	min := -int64(1 << (bitLen - 1))
	max := int64((1 << (bitLen - 1)) - 1)
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}
