package tokenutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateFast(t *testing.T) {
	assert.Equal(t, 0, EstimateFast(""))
	assert.Equal(t, 0, EstimateFast("   "))
	assert.Equal(t, 1, EstimateFast("hi"))

	// Long text: character heuristic dominates.
	long := "some reasonably long sentence that keeps going for a while"
	assert.Greater(t, EstimateFast(long), 10)

	// Many short words: word count dominates.
	assert.Equal(t, 5, EstimateFast("a b c d e"))
}

func TestCountTokensNeverLessThanZero(t *testing.T) {
	assert.GreaterOrEqual(t, CountTokens("hello world"), 1)
	assert.Zero(t, CountTokens(""))
}
