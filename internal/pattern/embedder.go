package pattern

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// DefaultDimensions is the HashEmbedder vector size when none is configured.
const DefaultDimensions = 256

// ErrEmptyText is returned when there is nothing to embed.
var ErrEmptyText = errors.New("no embeddable text")

// Embedder turns task text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder is a local embedder using signed feature hashing of words and
// word bigrams. Vectors are L2-normalised so dot product equals cosine.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. Non-positive dims uses DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector length.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	vec := make([]float64, h.dims)
	for i, w := range words {
		h.add(vec, w, 1.0)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dims)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	sum := blake3.Sum256([]byte(feature))
	bucket := binary.LittleEndian.Uint32(sum[:4]) % uint32(h.dims)
	if sum[4]&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
