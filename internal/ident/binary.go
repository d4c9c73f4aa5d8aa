package ident

import (
	"math/rand"
	"strings"
)

// IDLength is the length of every identifier written as part of a bundle.
const IDLength = 32

// Generator produces opaque record identifiers.
type Generator interface {
	Generate(length int) string
}

// BinaryGenerator is the default Generator. It holds no state and is safe for
// concurrent use.
type BinaryGenerator struct{}

func (BinaryGenerator) Generate(length int) string {
	return Binary(length)
}

// Binary returns a string of length characters, each drawn uniformly from {'0','1'}.
// A length of zero or less yields the empty string.
// Identifiers only carry entropy; collisions are not checked.
func Binary(length int) string {
	if length <= 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		if rand.Intn(2) == 0 {
			b.WriteByte('0')
		} else {
			b.WriteByte('1')
		}
	}
	return b.String()
}
