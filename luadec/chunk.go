package luadec

import (
	"bytes"
	"encoding/binary"
	"math"
)

// MarkerByte is the first byte of every encoded script chunk the client
// ships. Blobs that do not start with it are plain text.
const MarkerByte = 0x2A

// markerEnvelope is the fixed-size region after the marker byte that the
// packer fills before the NUL-terminated source path: 0x100 bytes of
// chunk metadata the loader ignores.
const markerEnvelope = 0x100

// Lua 5.3 chunk header fields, 32-bit build (4-byte size_t), little-endian
// with 8-byte integers and doubles.
const (
	luacVersion = 0x53
	luacFormat  = 0x00
	luacInt     = 0x5678
	luacNum     = 370.5
)

var (
	luaSignature = []byte("\x1bLua")
	luacData     = []byte("\x19\x93\r\n\x1a\n")
	luacSizes    = []byte{4, 4, 4, 8, 8}
)

var chunkHeader = buildChunkHeader()

func buildChunkHeader() []byte {
	h := make([]byte, 0, 33)
	h = append(h, luaSignature...)
	h = append(h, luacVersion, luacFormat)
	h = append(h, luacData...)
	h = append(h, luacSizes...)
	h = binary.LittleEndian.AppendUint64(h, luacInt)
	h = binary.LittleEndian.AppendUint64(h, math.Float64bits(luacNum))
	return h
}

// SynthesizeChunk rebuilds a loadable bytecode chunk from a marker-tagged
// blob without any interpreter: it strips the marker, the fixed envelope,
// and the NUL-terminated source path (plus NUL padding), then prepends the
// canonical header the stock loader expects.
func SynthesizeChunk(data []byte) ([]byte, error) {
	if len(data) < 1+markerEnvelope || data[0] != MarkerByte {
		return nil, ErrUnknownFormat
	}
	payload := data[1+markerEnvelope:]
	zero := bytes.IndexByte(payload, 0)
	if zero == -1 {
		return nil, ErrMalformedPayload
	}
	start := zero + 1
	for start < len(payload) && payload[start] == 0 {
		start++
	}
	out := make([]byte, 0, len(chunkHeader)+len(payload)-start)
	out = append(out, chunkHeader...)
	out = append(out, payload[start:]...)
	return out, nil
}
