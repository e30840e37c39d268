// Package blob implements the payload-level storage policies shared by
// every storage driver: selective compression and embedding
// quantization (spec.md §4.1).
package blob

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/cortexmem/engine/config"
)

// marker bytes prefixed to every blob written by Compress so Decompress
// can tell compressed payloads from raw ones without external metadata.
const (
	markerRaw       byte = 0x00
	markerCompressed byte = 0x01
)

// Compressor applies the selective-compression policy from
// config.CompressionConfig: a payload is only stored compressed if doing
// so strictly shrinks it, and only once it crosses ThresholdBytes.
// brotli/selective-brotli algorithm values alias to gzip — no brotli
// library appears anywhere in the reference corpus (see DESIGN.md).
type Compressor struct {
	cfg config.CompressionConfig
}

// NewCompressor builds a Compressor from cfg.
func NewCompressor(cfg config.CompressionConfig) *Compressor {
	return &Compressor{cfg: cfg}
}

// Compress returns a marker-prefixed blob. If compression is disabled,
// the payload is below threshold, or compressing it does not shrink it,
// the raw payload is returned prefixed with markerRaw.
func (c *Compressor) Compress(payload []byte) ([]byte, error) {
	if !c.cfg.Enabled || len(payload) < c.cfg.ThresholdBytes {
		return prefixed(markerRaw, payload), nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("blob: new gzip writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("blob: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("blob: gzip close: %w", err)
	}

	if buf.Len() >= len(payload) {
		// Compression didn't help (common for already-dense text);
		// store raw rather than pay the decompression cost for nothing.
		return prefixed(markerRaw, payload), nil
	}
	return prefixed(markerCompressed, buf.Bytes()), nil
}

// Decompress reverses Compress, dispatching on the leading marker byte.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	marker, body := blob[0], blob[1:]
	switch marker {
	case markerRaw:
		return body, nil
	case markerCompressed:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("blob: new gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("blob: gzip read: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("blob: unknown marker byte 0x%02x", marker)
	}
}

func prefixed(marker byte, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, marker)
	out = append(out, body...)
	return out
}
