package keystore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/pbkdf2"
)

// cancelCheckStride is how many sequential-write (and mix) iterations run
// between reads of the cancellation flag. Must be a power of two.
const cancelCheckStride = 1024

const maxInt = int(^uint(0) >> 1)

// cancellableScrypt derives params.DKLen bytes from password and salt per
// the scrypt construction (PBKDF2-HMAC-SHA-256 wrapping p independent
// smix passes of N iterations each). The smix loops read cancel between
// iterations; on observation every intermediate buffer is zeroed and the
// derivation fails with ErrCancelled.
func cancellableScrypt(password, salt []byte, params ScryptParams, cancel *Cancellable) ([]byte, error) {
	n, r, p := params.N, params.R, params.P
	if r <= 0 || p <= 0 || params.DKLen <= 0 {
		return nil, fmt.Errorf("%w: scrypt r, p, and dklen must be positive", ErrInvalidParameter)
	}
	if n <= 1 || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: scrypt N must be a power of two greater than 1", ErrInvalidParameter)
	}
	if uint64(r)*uint64(p) >= 1<<30 || r > maxInt/128/p || r > maxInt/256 || n > maxInt/128/r {
		return nil, fmt.Errorf("%w: scrypt parameters too large", ErrInvalidParameter)
	}
	if cancel.isCancelled() {
		return nil, ErrCancelled
	}

	xy := make([]uint32, 64*r)
	v := make([]uint32, 32*n*r)
	b := pbkdf2.Key(password, salt, 1, p*128*r, sha256.New)

	for i := 0; i < p; i++ {
		if err := smix(b[i*128*r:], r, n, v, xy, cancel); err != nil {
			zero(b)
			zeroWords(v)
			zeroWords(xy)
			return nil, err
		}
	}

	key := pbkdf2.Key(password, b, 1, params.DKLen, sha256.New)
	zero(b)
	zeroWords(v)
	zeroWords(xy)
	return key, nil
}

// smix performs the ROMix transformation on the 128*r-byte block b: N
// sequential writes into v, then N pseudorandom reads back, mixing with
// blockMix at each step. Both N-iteration loops are the cancellation check
// points.
func smix(b []byte, r, n int, v, xy []uint32, cancel *Cancellable) error {
	var tmp [16]uint32
	blockLen := 32 * r
	x := xy[:blockLen]
	y := xy[blockLen:]

	for i := 0; i < blockLen; i++ {
		x[i] = binary.LittleEndian.Uint32(b[4*i:])
	}

	for i := 0; i < n; i += 2 {
		if i&(cancelCheckStride-1) == 0 && cancel.isCancelled() {
			return ErrCancelled
		}
		copy(v[i*blockLen:], x)
		blockMix(&tmp, x, y, r)

		copy(v[(i+1)*blockLen:], y)
		blockMix(&tmp, y, x, r)
	}

	for i := 0; i < n; i += 2 {
		if i&(cancelCheckStride-1) == 0 && cancel.isCancelled() {
			return ErrCancelled
		}
		j := int(integerify(x, r) & uint64(n-1))
		blockXOR(x, v[j*blockLen:], blockLen)
		blockMix(&tmp, x, y, r)

		j = int(integerify(y, r) & uint64(n-1))
		blockXOR(y, v[j*blockLen:], blockLen)
		blockMix(&tmp, y, x, r)
	}

	for i := 0; i < blockLen; i++ {
		binary.LittleEndian.PutUint32(b[4*i:], x[i])
	}
	return nil
}

// blockMix shuffles in into out through 2r Salsa20/8 core applications,
// interleaving even and odd 64-byte sub-blocks per the scrypt paper.
func blockMix(tmp *[16]uint32, in, out []uint32, r int) {
	copy(tmp[:], in[(2*r-1)*16:(2*r)*16])
	for i := 0; i < 2*r; i += 2 {
		salsaXOR(tmp, in[i*16:], out[i*8:])
		salsaXOR(tmp, in[i*16+16:], out[i*8+r*16:])
	}
}

// integerify interprets the last 64-byte sub-block of b as a
// little-endian integer.
func integerify(b []uint32, r int) uint64 {
	j := (2*r - 1) * 16
	return uint64(b[j]) | uint64(b[j+1])<<32
}

func blockXOR(dst, src []uint32, n int) {
	for i, v := range src[:n] {
		dst[i] ^= v
	}
}

// salsaXOR sets tmp to tmp XOR in, applies the Salsa20/8 core to it, and
// writes the result to both tmp and out.
func salsaXOR(tmp *[16]uint32, in, out []uint32) {
	var w, x [16]uint32
	for i := range w {
		w[i] = tmp[i] ^ in[i]
	}
	x = w

	for i := 0; i < 8; i += 2 {
		x[4] ^= bits.RotateLeft32(x[0]+x[12], 7)
		x[8] ^= bits.RotateLeft32(x[4]+x[0], 9)
		x[12] ^= bits.RotateLeft32(x[8]+x[4], 13)
		x[0] ^= bits.RotateLeft32(x[12]+x[8], 18)

		x[9] ^= bits.RotateLeft32(x[5]+x[1], 7)
		x[13] ^= bits.RotateLeft32(x[9]+x[5], 9)
		x[1] ^= bits.RotateLeft32(x[13]+x[9], 13)
		x[5] ^= bits.RotateLeft32(x[1]+x[13], 18)

		x[14] ^= bits.RotateLeft32(x[10]+x[6], 7)
		x[2] ^= bits.RotateLeft32(x[14]+x[10], 9)
		x[6] ^= bits.RotateLeft32(x[2]+x[14], 13)
		x[10] ^= bits.RotateLeft32(x[6]+x[2], 18)

		x[3] ^= bits.RotateLeft32(x[15]+x[11], 7)
		x[7] ^= bits.RotateLeft32(x[3]+x[15], 9)
		x[11] ^= bits.RotateLeft32(x[7]+x[3], 13)
		x[15] ^= bits.RotateLeft32(x[11]+x[7], 18)

		x[1] ^= bits.RotateLeft32(x[0]+x[3], 7)
		x[2] ^= bits.RotateLeft32(x[1]+x[0], 9)
		x[3] ^= bits.RotateLeft32(x[2]+x[1], 13)
		x[0] ^= bits.RotateLeft32(x[3]+x[2], 18)

		x[6] ^= bits.RotateLeft32(x[5]+x[4], 7)
		x[7] ^= bits.RotateLeft32(x[6]+x[5], 9)
		x[4] ^= bits.RotateLeft32(x[7]+x[6], 13)
		x[5] ^= bits.RotateLeft32(x[4]+x[7], 18)

		x[11] ^= bits.RotateLeft32(x[10]+x[9], 7)
		x[8] ^= bits.RotateLeft32(x[11]+x[10], 9)
		x[9] ^= bits.RotateLeft32(x[8]+x[11], 13)
		x[10] ^= bits.RotateLeft32(x[9]+x[8], 18)

		x[12] ^= bits.RotateLeft32(x[15]+x[14], 7)
		x[13] ^= bits.RotateLeft32(x[12]+x[15], 9)
		x[14] ^= bits.RotateLeft32(x[13]+x[12], 13)
		x[15] ^= bits.RotateLeft32(x[14]+x[13], 18)
	}

	for i := range x {
		x[i] += w[i]
		tmp[i] = x[i]
		out[i] = x[i]
	}
}

func zeroWords(w []uint32) {
	for i := range w {
		w[i] = 0
	}
}
