package dsp

import (
	"fmt"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// BitConverter changes PCM sample depth between 8, 16, 24 and 32 bits.
//
// Samples are widened or narrowed by shifting, preserving the sign and
// the most significant bits. 8-bit audio is treated as signed, matching
// the rest of the module.
type BitConverter struct {
	inBits  int
	outBits int
}

// NewBitConverter creates an unopened bit-depth conversion stage.
func NewBitConverter() *BitConverter {
	return &BitConverter{}
}

// Kind identifies the stage as a bit-depth converter.
func (b *BitConverter) Kind() graph.StageKind { return graph.KindBitConvert }

// Open binds the converter to its input format. The output format is
// the input with the target bit depth.
func (b *BitConverter) Open(in, target pcm.Format) (pcm.Format, error) {
	if !supportedBits(int(in.Bits)) || !supportedBits(int(target.Bits)) {
		return pcm.Format{}, fmt.Errorf("%w: bit depth %d -> %d",
			graph.ErrNotSupported, in.Bits, target.Bits)
	}
	b.inBits = int(in.Bits)
	b.outBits = int(target.Bits)

	out := in
	out.Bits = target.Bits
	return out, nil
}

func supportedBits(bits int) bool {
	switch bits {
	case 8, 16, 24, 32:
		return true
	}
	return false
}

// Process converts one block to the output depth.
func (b *BitConverter) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}
	if b.inBits == b.outBits {
		return graph.Result{Out: in}, nil
	}

	inBytes := b.inBits / 8
	outBytes := b.outBits / 8
	n := len(in) / inBytes
	out := make([]byte, n*outBytes)

	for i := 0; i < n; i++ {
		// Widen to a signed 32-bit sample aligned at the top.
		var v int32
		switch b.inBits {
		case 8:
			v = int32(int8(in[i])) << 24
		case 16:
			v = int32(int16(in[i*2])|int16(in[i*2+1])<<8) << 16
		case 24:
			v = (int32(in[i*3]) | int32(in[i*3+1])<<8 | int32(int8(in[i*3+2]))<<16) << 8
		case 32:
			v = int32(in[i*4]) | int32(in[i*4+1])<<8 | int32(in[i*4+2])<<16 | int32(int8(in[i*4+3]))<<24
		}

		switch b.outBits {
		case 8:
			out[i] = byte(v >> 24)
		case 16:
			s := v >> 16
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		case 24:
			s := v >> 8
			out[i*3] = byte(s)
			out[i*3+1] = byte(s >> 8)
			out[i*3+2] = byte(s >> 16)
		case 32:
			out[i*4] = byte(v)
			out[i*4+1] = byte(v >> 8)
			out[i*4+2] = byte(v >> 16)
			out[i*4+3] = byte(v >> 24)
		}
	}

	return graph.Result{Out: out}, nil
}

// Close releases converter state.
func (b *BitConverter) Close() error { return nil }
