// Package compress provides DEFLATE-compatible compression of master
// ciphertext, mirroring a pako-compatible raw-deflate stream (spec.md
// §4.3). It runs on the klauspost/compress fork of compress/flate — a
// drop-in, faster implementation already present in this example corpus
// (OhanaFS-stitch depends on github.com/klauspost/compress for zstd).
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compress DEFLATEs data at the best-compression level. Operates on master
// ciphertext, not plaintext: compressing plaintext would leak entropy about
// its content, while compressing ciphertext only helps on the rare occasion
// the cipher output itself compresses — the protocol preserves this
// placement for manifest compatibility regardless.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("compress: new writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("compress: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a DEFLATE stream produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
