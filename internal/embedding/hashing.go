package embedding

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/lazypower/lattice/internal/vecmath"
)

// Hashing is a deterministic bag-of-words embedder. Each token is hashed
// into one of dims buckets with a hashed sign, then the vector is L2
// normalized. It needs no network and is stable across processes.
type Hashing struct {
	dims int
}

// NewHashing returns a hashing provider with the given dimensionality.
func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = 256
	}
	return &Hashing{dims: dims}
}

func (h *Hashing) Model() string   { return "hashing-v1" }
func (h *Hashing) Dimensions() int { return h.dims }

// Embed never fails. Text without tokens yields the zero vector.
func (h *Hashing) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	for _, tok := range Tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return vecmath.Normalize(vec), nil
}

// Tokenize splits text into lowercase tokens, stripping punctuation and
// single-character tokens.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 1 {
				tokens = append(tokens, current.String())
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
