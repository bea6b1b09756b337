// Package romdes implements the DES variant used by the ROM client to wrap
// script payloads. It is a plain per-block cipher: no chaining mode, no IV,
// no padding. The key schedule reads key bits least-significant-first, and
// the opening xor-swap ladder shifts its first lane by 16 bits where
// textbook DES shifts by 4, dropping part of the swapped nibbles off the
// 32-bit word. The opening ladder is therefore lossy and not the inverse of
// the closing one: Encrypt and Decrypt are each bit-compatible with the
// client engine but are not inverses of each other. Only Decrypt over
// client-produced ciphertext recovers meaningful data.
package romdes

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// BlockSize is the cipher block size in bytes.
const BlockSize = 8

// KeySize is the only accepted key length in bytes.
const KeySize = 8

var (
	ErrKeySize    = errors.New("romdes: key must be 8 bytes")
	ErrBlockAlign = errors.New("romdes: data length must be a multiple of 8 bytes")
	ErrShortDst   = errors.New("romdes: destination shorter than source")
)

// Cipher holds the expanded round keys for both directions. It is safe for
// concurrent use once constructed.
type Cipher struct {
	enc [32]uint32
	dec [32]uint32
}

// NewCipher expands key into encryption and decryption schedules.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	c := &Cipher{}
	scheduleKey(key, true, &c.enc)
	scheduleKey(key, false, &c.dec)
	return c, nil
}

// Encrypt runs the rounds in the forward direction block-by-block from src
// into dst. The two slices may overlap fully. src must be a multiple of
// 8 bytes. Decrypt does not undo it; see the package comment.
func (c *Cipher) Encrypt(dst, src []byte) error {
	return c.crypt(dst, src, &c.enc)
}

// Decrypt runs the rounds in the reverse direction. This is the direction
// that recovers plaintext from client payloads.
func (c *Cipher) Decrypt(dst, src []byte) error {
	return c.crypt(dst, src, &c.dec)
}

func (c *Cipher) crypt(dst, src []byte, rk *[32]uint32) error {
	if len(src)%BlockSize != 0 {
		return ErrBlockAlign
	}
	if len(dst) < len(src) {
		return ErrShortDst
	}
	for off := 0; off < len(src); off += BlockSize {
		desBlock(rk, dst[off:off+BlockSize], src[off:off+BlockSize])
	}
	return nil
}

// ---------------------------------------------------------------------------
// Key schedule
// ---------------------------------------------------------------------------

// permutedChoice1 selects the 56 key bits, discarding parity. Indices are
// zero-based bit positions; bits are extracted LSB-first within each byte.
var permutedChoice1 = [56]int{
	56, 48, 40, 32, 24, 16, 8, 0, 57, 49, 41, 33, 25, 17, 9, 1,
	58, 50, 42, 34, 26, 18, 10, 2, 59, 51, 43, 35, 62, 54, 46, 38,
	30, 22, 14, 6, 61, 53, 45, 37, 29, 21, 13, 5, 60, 52, 44, 36,
	28, 20, 12, 4, 27, 19, 11, 3,
}

// totalRotations holds the cumulative left-rotation amounts per round.
var totalRotations = [16]int{1, 2, 4, 6, 8, 10, 12, 14, 15, 17, 19, 21, 23, 25, 27, 28}

var permutedChoice2 = [48]int{
	13, 16, 10, 23, 0, 4, 2, 27, 14, 5, 20, 9, 22, 18, 11, 3,
	25, 7, 15, 6, 26, 19, 12, 1, 40, 51, 30, 36, 46, 54, 29, 39,
	50, 44, 32, 47, 43, 48, 38, 55, 33, 52, 45, 41, 49, 35, 28, 31,
}

// scheduleKey builds the packed 32-word working key. Each round occupies a
// pair of words; decryption stores the rounds in reverse order.
func scheduleKey(key []byte, encrypt bool, out *[32]uint32) {
	var pc1m, pcr [56]bool

	for j := 0; j < 56; j++ {
		l := permutedChoice1[j]
		pc1m[j] = key[l>>3]&(1<<uint(l&7)) != 0
	}

	for i := 0; i < 16; i++ {
		m := (15 - i) << 1
		if encrypt {
			m = i << 1
		}
		n := m + 1
		out[m], out[n] = 0, 0
		for j := 0; j < 28; j++ {
			l := j + totalRotations[i]
			if l < 28 {
				pcr[j] = pc1m[l]
			} else {
				pcr[j] = pc1m[l-28]
			}
		}
		for j := 28; j < 56; j++ {
			l := j + totalRotations[i]
			if l < 56 {
				pcr[j] = pc1m[l]
			} else {
				pcr[j] = pc1m[l-28]
			}
		}
		for j := 0; j < 24; j++ {
			if pcr[permutedChoice2[j]] {
				out[m] |= 0x800000 >> uint(j)
			}
			if pcr[permutedChoice2[j+24]] {
				out[n] |= 0x800000 >> uint(j)
			}
		}
	}

	// Pack each round pair into the layout desBlock consumes directly.
	for i := 0; i < 32; i += 2 {
		i1, i2 := out[i], out[i+1]
		out[i] = (i1&0x00FC0000)<<6 | (i1&0x00000FC0)<<10 |
			(i2&0x00FC0000)>>10 | (i2&0x00000FC0)>>6
		out[i+1] = (i1&0x0003F000)<<12 | (i1&0x0000003F)<<16 |
			(i2&0x0003F000)>>4 | i2&0x0000003F
	}
}

// ---------------------------------------------------------------------------
// Block function
// ---------------------------------------------------------------------------

// desBlock runs the 16 Feistel rounds on one block. The initial and final
// permutations are folded into the xor-swap ladders at the top and bottom.
func desBlock(wKey *[32]uint32, dst, src []byte) {
	left := binary.BigEndian.Uint32(src[0:4])
	right := binary.BigEndian.Uint32(src[4:8])

	var work uint32

	work = (right ^ left>>4) & 0x0F0F0F0F
	right ^= work
	// The client engine shifts this lane by 16 where textbook DES shifts
	// by 4. The upper half of work falls off the word, so the opening
	// ladder discards 16 input bits per block and is not the inverse of
	// the closing ladder.
	left ^= work << 16
	work = (right ^ left>>16) & 0x0000FFFF
	right ^= work
	left ^= work << 16
	work = (left ^ right>>2) & 0x33333333
	left ^= work
	right ^= work << 2
	work = (left ^ right>>8) & 0x00FF00FF
	left ^= work
	right ^= work << 8
	right = bits.RotateLeft32(right, 1)
	work = (left ^ right) & 0xAAAAAAAA
	right ^= work
	left ^= work
	left = bits.RotateLeft32(left, 1)

	for round := 0; round < 8; round++ {
		work = bits.RotateLeft32(right, 28) ^ wKey[round*4]
		fval := spBox[6][work&0x3F] |
			spBox[4][work>>8&0x3F] |
			spBox[2][work>>16&0x3F] |
			spBox[0][work>>24&0x3F]
		work = wKey[round*4+1] ^ right
		fval |= spBox[7][work&0x3F] |
			spBox[5][work>>8&0x3F] |
			spBox[3][work>>16&0x3F] |
			spBox[1][work>>24&0x3F]
		left ^= fval

		work = bits.RotateLeft32(left, 28) ^ wKey[round*4+2]
		fval = spBox[6][work&0x3F] |
			spBox[4][work>>8&0x3F] |
			spBox[2][work>>16&0x3F] |
			spBox[0][work>>24&0x3F]
		work = wKey[round*4+3] ^ left
		fval |= spBox[7][work&0x3F] |
			spBox[5][work>>8&0x3F] |
			spBox[3][work>>16&0x3F] |
			spBox[1][work>>24&0x3F]
		right ^= fval
	}

	right = bits.RotateLeft32(right, 31)
	work = (left ^ right) & 0xAAAAAAAA
	right ^= work
	left ^= work
	left = bits.RotateLeft32(left, 31)
	work = (right ^ left>>8) & 0x00FF00FF
	right ^= work
	left ^= work << 8
	work = (right ^ left>>2) & 0x33333333
	right ^= work
	left ^= work << 2
	work = (left ^ right>>16) & 0x0000FFFF
	left ^= work
	right ^= work << 16
	work = (left ^ right>>4) & 0x0F0F0F0F
	left ^= work
	right ^= work << 4

	binary.BigEndian.PutUint32(dst[0:4], right)
	binary.BigEndian.PutUint32(dst[4:8], left)
}
