package luadec

import (
	"bytes"
	"encoding/binary"

	"github.com/chazu/romscript/romdes"
)

// payloadSig marks an encrypted envelope produced by the client's packer.
// It is followed by a 4-byte little-endian plaintext length and then the
// DES-encrypted body.
const payloadSig = "czjzgqde"

// payloadKey is the fixed cipher key the client ships for these envelopes.
var payloadKey = []byte{2, 5, 9, 3, 6, 1, 0, 1}

var payloadCipher = mustCipher(payloadKey)

func mustCipher(key []byte) *romdes.Cipher {
	c, err := romdes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	return c
}

// UnwrapPayload decrypts an encrypted envelope found anywhere inside blob.
// The second return is false when no envelope is present, which is the
// normal "not encrypted" branch rather than a fault. The encrypted region is
// rounded down to whole cipher blocks before decryption and the result is
// truncated to the declared plaintext length.
func UnwrapPayload(blob []byte) ([]byte, bool) {
	idx := bytes.Index(blob, []byte(payloadSig))
	if idx == -1 || len(blob) < idx+len(payloadSig)+4 {
		return nil, false
	}
	off := idx + len(payloadSig)
	size := binary.LittleEndian.Uint32(blob[off : off+4])
	enc := blob[off+4:]
	n := len(enc) &^ (romdes.BlockSize - 1)
	if n <= 0 {
		return nil, false
	}
	out := make([]byte, n)
	if err := payloadCipher.Decrypt(out, enc[:n]); err != nil {
		return nil, false
	}
	if int(size) < len(out) {
		out = out[:size]
	}
	return out, true
}
