package vector

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// Embed hashes the words of text into a dim-sized bag-of-words vector and
// normalizes it to unit length. Stopwords and single letters are skipped.
// Text without any remaining word yields the zero vector.
func Embed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	if dim <= 0 {
		return vec
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 2 || english.Contains(w) {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		// the top bit picks a sign so collisions tend to cancel
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[int(sum%uint32(dim))] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
