package segment

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll, so one of each is shared by all segments.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("segment: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("segment: zstd decoder initialization failed: " + err.Error())
	}
}

func compressText(text string) []byte {
	return zstdEncoder.EncodeAll([]byte(text), nil)
}

func decompressText(compressed []byte, rawLen int) (string, error) {
	out, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawLen))
	if err != nil {
		return "", fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != rawLen {
		return "", fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawLen)
	}
	return string(out), nil
}
