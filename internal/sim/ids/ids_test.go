package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocator_ReserveIsContiguousAndMonotonic(t *testing.T) {
	a := NewAllocator(100)

	assert.Equal(t, []int{100, 101, 102}, a.Reserve(3))
	assert.Equal(t, []int{103, 104}, a.Reserve(2))
	assert.Equal(t, 105, a.Next())
	assert.Empty(t, a.Reserve(0))
	assert.Equal(t, 105, a.Next())
}

func TestAllocator_ClaimSkipsSuppliedIDs(t *testing.T) {
	a := NewAllocator(0)
	a.Claim(7, 3)
	assert.Equal(t, []int{8}, a.Reserve(1))

	a.Claim(2)
	assert.Equal(t, 9, a.Next())
}
