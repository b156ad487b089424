package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func cmpInt64(a, b Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func valueOf(s string) Value {
	var v Value
	copy(v[:], s)
	return v
}

func TestBucketInsertLookupRoundTrip(t *testing.T) {
	b := NewBucketPage(&Page{})

	assert.True(t, b.Insert(1, valueOf("a"), cmpInt64))
	assert.True(t, b.Insert(2, valueOf("b"), cmpInt64))

	got, ok := b.GetValue(1, cmpInt64)
	assert.True(t, ok)
	assert.Equal(t, []Value{valueOf("a")}, got)
}

func TestBucketRejectsExactDuplicatePair(t *testing.T) {
	b := NewBucketPage(&Page{})
	assert.True(t, b.Insert(1, valueOf("a"), cmpInt64))
	assert.False(t, b.Insert(1, valueOf("a"), cmpInt64))
	// Same key, different value is not a duplicate.
	assert.True(t, b.Insert(1, valueOf("c"), cmpInt64))
}

func TestBucketRemoveLeavesTombstoneNotCompacted(t *testing.T) {
	b := NewBucketPage(&Page{})
	assert.True(t, b.Insert(1, valueOf("a"), cmpInt64))
	assert.True(t, b.Remove(1, valueOf("a"), cmpInt64))

	_, ok := b.GetValue(1, cmpInt64)
	assert.False(t, ok)
	assert.True(t, b.IsOccupied(0))
	assert.False(t, b.IsReadable(0))

	// Insert again reuses the tombstoned slot 0: an
	// insert-remove-insert cycle must keep finding the key.
	assert.True(t, b.Insert(1, valueOf("a2"), cmpInt64))
	got, ok := b.GetValue(1, cmpInt64)
	assert.True(t, ok)
	assert.Equal(t, []Value{valueOf("a2")}, got)
}

func TestBucketIsFullAndIsEmpty(t *testing.T) {
	b := NewBucketPage(&Page{})
	assert.True(t, b.IsEmpty())
	assert.False(t, b.IsFull())

	for i := 0; i < BucketArraySize; i++ {
		assert.True(t, b.Insert(Key(i), valueOf("x"), cmpInt64))
	}
	assert.True(t, b.IsFull())
	assert.False(t, b.Insert(Key(1000), valueOf("overflow"), cmpInt64))
}

func TestBucketGetAllSnapshotsReadableOnly(t *testing.T) {
	b := NewBucketPage(&Page{})
	b.Insert(1, valueOf("a"), cmpInt64)
	b.Insert(2, valueOf("b"), cmpInt64)
	b.Remove(1, valueOf("a"), cmpInt64)

	all := b.GetAll()
	assert.Len(t, all, 1)
	assert.Equal(t, Key(2), all[0].Key)
}

func TestBucketClearResetsBitmaps(t *testing.T) {
	b := NewBucketPage(&Page{})
	b.Insert(1, valueOf("a"), cmpInt64)
	b.Clear()
	assert.True(t, b.IsEmpty())
	assert.False(t, b.IsOccupied(0))
}

func TestBucketNumReadable(t *testing.T) {
	b := NewBucketPage(&Page{})
	assert.Equal(t, 0, b.NumReadable())
	b.Insert(1, valueOf("a"), cmpInt64)
	b.Insert(2, valueOf("b"), cmpInt64)
	assert.Equal(t, 2, b.NumReadable())
	b.Remove(1, valueOf("a"), cmpInt64)
	assert.Equal(t, 1, b.NumReadable())
}
