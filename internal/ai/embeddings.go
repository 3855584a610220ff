// Package ai holds the deterministic embedding used when no model provider is configured.
package ai

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// MockEmbeddings hashes each word of a text into one of dim buckets with a hash-derived sign
// (the hashing trick). Texts that share words get similar vectors, which is enough for the
// FAQ vector fallback to behave sensibly offline. Empty texts map to the zero vector.
func MockEmbeddings(texts []string, dim int) [][]float64 {
	if dim <= 0 {
		dim = 32
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec := make([]float64, dim)
		for _, w := range words(t) {
			h := sha256.Sum256([]byte(w))
			idx := binary.BigEndian.Uint32(h[0:4]) % uint32(dim)
			if h[4]&1 == 0 {
				vec[idx]++
			} else {
				vec[idx]--
			}
		}
		out[i] = unit(vec)
	}
	return out
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func unit(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
	return v
}
