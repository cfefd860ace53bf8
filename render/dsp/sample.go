package dsp

// toInt16 reinterprets little-endian PCM bytes as int16 samples.
// Trailing odd bytes are ignored.
func toInt16(p []byte) []int16 {
	samples := make([]int16, len(p)/2)
	for i := range samples {
		samples[i] = int16(p[i*2]) | int16(p[i*2+1])<<8
	}
	return samples
}

// fromInt16 serializes int16 samples as little-endian PCM bytes.
func fromInt16(samples []int16) []byte {
	p := make([]byte, len(samples)*2)
	for i, s := range samples {
		p[i*2] = byte(s)
		p[i*2+1] = byte(s >> 8)
	}
	return p
}

// sampleAt decodes the i-th little-endian sample of the given depth
// as a signed value. 8-bit audio is treated as signed, matching the
// bit-depth converter.
func sampleAt(p []byte, i, bits int) int32 {
	switch bits {
	case 8:
		return int32(int8(p[i]))
	case 16:
		return int32(int16(p[i*2]) | int16(p[i*2+1])<<8)
	case 24:
		return int32(p[i*3]) | int32(p[i*3+1])<<8 | int32(int8(p[i*3+2]))<<16
	default:
		return int32(p[i*4]) | int32(p[i*4+1])<<8 | int32(p[i*4+2])<<16 | int32(int8(p[i*4+3]))<<24
	}
}

// storeSample encodes v as the i-th little-endian sample of the given
// depth.
func storeSample(p []byte, i, bits int, v int32) {
	switch bits {
	case 8:
		p[i] = byte(v)
	case 16:
		p[i*2] = byte(v)
		p[i*2+1] = byte(v >> 8)
	case 24:
		p[i*3] = byte(v)
		p[i*3+1] = byte(v >> 8)
		p[i*3+2] = byte(v >> 16)
	default:
		p[i*4] = byte(v)
		p[i*4+1] = byte(v >> 8)
		p[i*4+2] = byte(v >> 16)
		p[i*4+3] = byte(v >> 24)
	}
}

// clip16 converts a float sample to int16 with clipping protection.
func clip16(v float64) int16 {
	if v > 32767.0 {
		return 32767
	}
	if v < -32768.0 {
		return -32768
	}
	return int16(v)
}
