package pkgindex

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Encode implements §4.2's wire format: an 8-byte big-endian uncompressed
// length, followed by the zstd-compressed (level 3) gob encoding of idx.
// gob is this repo's stand-in for the original implementation's compact
// binary struct codec — no pack example exercises a third-party binary
// codec library, so the standard library's own self-describing binary
// format is used instead.
func Encode(idx PackageIndex) ([]byte, error) {
	wire := idx
	wire.Tarballs = make([]*TarballURL, len(idx.Tarballs))
	for i, t := range idx.Tarballs {
		if t == nil {
			t = &TarballURL{Kind: tarballAbsent}
		}
		wire.Tarballs[i] = t
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(wire); err != nil {
		return nil, fmt.Errorf("pkgindex: encoding: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("pkgindex: creating zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(raw.Bytes(), nil)
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("pkgindex: closing zstd encoder: %w", err)
	}

	out := make([]byte, 8+len(compressed))
	binary.BigEndian.PutUint64(out[:8], uint64(raw.Len()))
	copy(out[8:], compressed)
	return out, nil
}

// Decode is the inverse of Encode: read the length prefix, decompress
// exactly that many bytes, and gob-decode the result.
func Decode(data []byte) (PackageIndex, error) {
	if len(data) < 8 {
		return PackageIndex{}, fmt.Errorf("pkgindex: blob too short to contain a length prefix")
	}
	uncompressedLen := binary.BigEndian.Uint64(data[:8])

	dec, err := zstd.NewReader(bytes.NewReader(data[8:]))
	if err != nil {
		return PackageIndex{}, fmt.Errorf("pkgindex: creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw := make([]byte, uncompressedLen)
	if _, err := io.ReadFull(dec, raw); err != nil {
		return PackageIndex{}, fmt.Errorf("pkgindex: decompressing: %w", err)
	}

	var idx PackageIndex
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&idx); err != nil {
		return PackageIndex{}, fmt.Errorf("pkgindex: decoding: %w", err)
	}
	for i, t := range idx.Tarballs {
		if t.Kind == tarballAbsent {
			idx.Tarballs[i] = nil
		}
	}
	return idx, nil
}

// tarballAbsent stands in on the wire for a nil Tarballs entry, which gob
// cannot encode inside a slice.
const tarballAbsent TarballKind = -1
