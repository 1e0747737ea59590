package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTinyBuffer(t *testing.T) {
	shards := Split([]byte("hello world"), 4)
	ranges := [][]int{{0, 3}, {3, 6}, {6, 9}, {9, 11}}
	for i, r := range ranges {
		assert.Len(t, shards[i], r[1]-r[0])
	}
	assert.Equal(t, []int{3, 3, 3, 2}, lengths(shards))
}

func TestMergeRoundTripsNonRS(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, twice over")
	shards := Split(original, 7)
	merged := Merge(shards)
	assert.Equal(t, original, merged)
}

func TestPadShardsEqualizesLength(t *testing.T) {
	shards := Split([]byte("hello world"), 4)
	padded := PadShards(shards, 3)
	for _, s := range padded {
		assert.Len(t, s, 3)
	}
	assert.Equal(t, []byte("ld\x00"), padded[3])
}

func lengths(shards [][]byte) []int {
	out := make([]int, len(shards))
	for i, s := range shards {
		out[i] = len(s)
	}
	return out
}
