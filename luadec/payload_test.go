package luadec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
)

// The packer's cipher is not something the decoder can invert from this
// side: its opening ladder drops input bits, so envelopes cannot be built by
// encrypting a chosen plaintext and decrypting it back. Fixtures are fixed
// ciphertexts paired with the engine's decryption of them.
const (
	fixtureCT16    = "000102030405060708090a0b0c0d0e0f"
	fixturePlain16 = "76fa997b98858c23b51256a2ec1b7d3a"
	fixtureCT8     = "0000000000000000"
	fixturePlain8  = "99d2b0fa2e33d78f"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	return b
}

// envelope assembles what the client's packer emits: signature, declared
// plaintext length, then the encrypted body, after any prefix bytes.
func envelope(prefix []byte, declared uint32, ct []byte) []byte {
	blob := append([]byte{}, prefix...)
	blob = append(blob, payloadSig...)
	blob = binary.LittleEndian.AppendUint32(blob, declared)
	return append(blob, ct...)
}

func TestUnwrapPayload(t *testing.T) {
	blob := envelope(nil, 16, mustHex(t, fixtureCT16))

	got, ok := UnwrapPayload(blob)
	if !ok {
		t.Fatal("UnwrapPayload returned not-present")
	}
	if want := mustHex(t, fixturePlain16); !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestUnwrapPayloadSignatureMidBlob(t *testing.T) {
	blob := envelope([]byte{0x2A, 0xFF, 0x00, 0x10}, 16, mustHex(t, fixtureCT16))

	got, ok := UnwrapPayload(blob)
	if !ok || !bytes.Equal(got, mustHex(t, fixturePlain16)) {
		t.Fatalf("got %x ok=%v", got, ok)
	}
}

func TestUnwrapPayloadTruncatesToDeclaredLength(t *testing.T) {
	blob := envelope(nil, 11, mustHex(t, fixtureCT16))

	got, ok := UnwrapPayload(blob)
	if !ok || !bytes.Equal(got, mustHex(t, fixturePlain16)[:11]) {
		t.Fatalf("got %x ok=%v", got, ok)
	}
}

func TestUnwrapPayloadZeroDeclaredLength(t *testing.T) {
	blob := envelope(nil, 0, mustHex(t, fixtureCT8))

	got, ok := UnwrapPayload(blob)
	if !ok {
		t.Fatal("envelope is present even when it declares no plaintext")
	}
	if len(got) != 0 {
		t.Fatalf("got %x, want empty", got)
	}
}

func TestUnwrapPayloadAbsent(t *testing.T) {
	for _, blob := range [][]byte{
		nil,
		[]byte("plain lua source, no envelope"),
		[]byte(payloadSig[:5]),
	} {
		if got, ok := UnwrapPayload(blob); ok {
			t.Fatalf("UnwrapPayload(%q) = %q, want not-present", blob, got)
		}
	}
}

func TestUnwrapPayloadTruncatedAfterSignature(t *testing.T) {
	blob := append([]byte(payloadSig), 0x10, 0x00)
	if _, ok := UnwrapPayload(blob); ok {
		t.Fatal("short length field should mean not-present")
	}
}

func TestUnwrapPayloadNoWholeBlock(t *testing.T) {
	blob := append([]byte(payloadSig), 0x10, 0x00, 0x00, 0x00)
	blob = append(blob, 1, 2, 3, 4, 5) // under one cipher block
	if _, ok := UnwrapPayload(blob); ok {
		t.Fatal("sub-block ciphertext should mean not-present")
	}
}

func TestUnwrapPayloadRoundsDownRaggedTail(t *testing.T) {
	ct := append(mustHex(t, fixtureCT16), 0xAA, 0xBB, 0xCC) // trailing garbage under a block
	blob := envelope(nil, 16, ct)

	got, ok := UnwrapPayload(blob)
	if !ok || !bytes.Equal(got, mustHex(t, fixturePlain16)) {
		t.Fatalf("got %x ok=%v", got, ok)
	}
}
