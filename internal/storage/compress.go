// V2 payload compression. The encoder and decoder are allocated once
// and favour encode speed: every write compresses (hot path) while
// only reads decompress.
package storage

import "github.com/klauspost/compress/zstd"

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressPayload(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func decompressPayload(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}
