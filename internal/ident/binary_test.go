package ident

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPattern = regexp.MustCompile(`^[01]*$`)

func TestBinary_Length(t *testing.T) {
	for _, n := range []int{1, 2, 7, 32, 64, 257} {
		id := Binary(n)
		assert.Len(t, id, n)
		assert.Regexp(t, binaryPattern, id)
	}
}

func TestBinary_Zero(t *testing.T) {
	assert.Equal(t, "", Binary(0))
}

func TestBinary_NegativeYieldsEmpty(t *testing.T) {
	assert.Equal(t, "", Binary(-1))
	assert.Equal(t, "", Binary(-32))
}

func TestBinary_UsesBothDigits(t *testing.T) {
	id := Binary(4096)
	assert.Contains(t, id, "0")
	assert.Contains(t, id, "1")
}

func TestBinaryGenerator_Concurrent(t *testing.T) {
	var gen Generator = BinaryGenerator{}

	var wg sync.WaitGroup
	ids := make([]string, 64)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = gen.Generate(IDLength)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Len(t, id, IDLength)
		assert.Regexp(t, binaryPattern, id)
	}
}
