package hashing

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeccak256OfEmpty(t *testing.T) {
	got := Keccak256(nil)
	require.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hex.EncodeToString(got))
}

func TestKeccak256Streaming(t *testing.T) {
	h := NewKeccak256()
	h.Write([]byte("dog"))
	streamed := h.Sum(nil)
	oneShot := Keccak256([]byte("dog"))
	require.Equal(t, oneShot, streamed)
}

func TestHMACSHA512Deterministic(t *testing.T) {
	a := HMACSHA512([]byte("key"), []byte("data"))
	b := HMACSHA512([]byte("key"), []byte("data"))
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}
