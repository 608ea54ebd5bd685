// Package hashutil holds the string hashing and identifier helpers shared by
// the session engine and the agent selector. Every function is pure except
// RandomID.
package hashutil

import (
	"crypto/md5"
	"encoding/hex"
	"math/big"
	"unicode/utf16"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the charset used for generated session and user identifiers.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultIDLength is the length of identifiers produced by RandomID(0).
const DefaultIDLength = 16

// HashCode returns the 31-multiplier rolling hash of s over its UTF-16 code
// units, wrapped to a signed 32-bit integer. Seeded at 0.
func HashCode(s string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(s)) {
		hash = hash*31 + int32(unit)
	}
	return hash
}

// MD5Hex returns the lowercase hex MD5 digest of the UTF-8 bytes of s.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// UniformHash maps s onto [0,1) by reading its MD5 digest as a 128-bit
// unsigned integer, rounding it to the nearest float64 and dividing by 2^128.
// The rounding matches parsing the hex digest as a double, so independent
// implementations agree on the result.
func UniformHash(s string) float64 {
	sum := md5.Sum([]byte(s))
	n := new(big.Int).SetBytes(sum[:])

	f := new(big.Float).SetPrec(53).SetMode(big.ToNearestEven).SetInt(n)
	f.SetMantExp(f, -128)

	v, _ := f.Float64()
	return v
}

// RandomID returns a random alphanumeric identifier. A non-positive length
// falls back to DefaultIDLength.
func RandomID(length int) (string, error) {
	if length <= 0 {
		length = DefaultIDLength
	}
	return gonanoid.Generate(Alphabet, length)
}

// MustRandomID is RandomID for callers that cannot recover from a failing
// entropy source.
func MustRandomID(length int) string {
	id, err := RandomID(length)
	if err != nil {
		panic(err)
	}
	return id
}
