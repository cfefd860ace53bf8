package source

import (
	"errors"
	"io"

	"github.com/opd-ai/audiomix/pcm"
)

// ErrBadAsset indicates the input is not a valid asset of the expected
// container or codec.
var ErrBadAsset = errors.New("source: invalid audio asset")

// Source is a pull-based decoder producing interleaved little-endian
// PCM in a fixed format.
type Source interface {
	// Format reports the PCM format of the decoded audio.
	Format() pcm.Format

	// Read fills p with decoded PCM bytes and returns the count,
	// io.EOF once the asset is exhausted.
	Read(p []byte) (int, error)
}

// BlockWriter accepts PCM blocks, typically a render stream.
type BlockWriter interface {
	Write(p []byte) error
}

// Pump reads s to exhaustion in blockBytes-sized blocks and writes
// each to w. The final block may be short.
func Pump(w BlockWriter, s Source, blockBytes int) error {
	buf := make([]byte, blockBytes)
	for {
		n, err := io.ReadFull(s, buf)
		if n > 0 {
			if werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
