package page

import "encoding/binary"

// Key is the fixed-width key type stored in a hash bucket slot. The
// core consumes an externally supplied comparator over Key, per
// spec.md §6, rather than assuming a total order itself.
type Key = int64

// ValueSize is the fixed width of a bucket slot's value payload,
// matching the teacher's B+Tree leaf value slot width.
const ValueSize = 128

// Value is the fixed-width value payload stored alongside a Key.
// Array types compare with ==, so pair equality for tombstone/dup
// checks never needs a caller-supplied value comparator.
type Value = [ValueSize]byte

const (
	sizeOfKey   = 8
	sizeOfValue = ValueSize
	pairSize    = sizeOfKey + sizeOfValue

	// BucketArraySize is the largest slot count for which
	// ceil(BucketArraySize/8)*2 + BucketArraySize*pairSize fits in
	// page.Size, per spec.md §6. 30 slots costs 4088 of 4096 bytes;
	// 31 would need 4224.
	BucketArraySize = 30

	bitmapBytes = (BucketArraySize-1)/8 + 1

	bucketOccupiedOffset = 0
	bucketReadableOffset = bucketOccupiedOffset + bitmapBytes
	bucketArrayOffset    = bucketReadableOffset + bitmapBytes
)

// CmpFunc is a three-way comparator over Key: negative if a < b, zero
// if equal, positive if a > b.
type CmpFunc func(a, b Key) int

// Pair is one readable (key, value) entry, used for split/merge
// rehashing snapshots.
type Pair struct {
	Key   Key
	Value Value
}

// BucketPage is a bit-packed slot array living in one buffer-pool
// page: an occupied bitmap, a readable bitmap, then BucketArraySize
// fixed-width (key, value) slots. Bit i lives at byte i/8, mask
// 128>>(i%8) — big-endian within the byte, per spec.md §6.
type BucketPage struct {
	Data []byte
}

func NewBucketPage(p *Page) *BucketPage {
	return &BucketPage{Data: p.Data[:]}
}

func bitMask(i int) byte { return byte(128 >> (i % 8)) }

func (b *BucketPage) testBit(offset, i int) bool {
	return b.Data[offset+i/8]&bitMask(i) != 0
}

func (b *BucketPage) setBit(offset, i int) {
	b.Data[offset+i/8] |= bitMask(i)
}

func (b *BucketPage) clearBit(offset, i int) {
	b.Data[offset+i/8] &^= bitMask(i)
}

func (b *BucketPage) IsOccupied(i int) bool { return b.testBit(bucketOccupiedOffset, i) }
func (b *BucketPage) IsReadable(i int) bool { return b.testBit(bucketReadableOffset, i) }

func (b *BucketPage) slotOffset(i int) int { return bucketArrayOffset + i*pairSize }

func (b *BucketPage) KeyAt(i int) Key {
	off := b.slotOffset(i)
	return int64(binary.LittleEndian.Uint64(b.Data[off : off+sizeOfKey]))
}

func (b *BucketPage) ValueAt(i int) Value {
	off := b.slotOffset(i) + sizeOfKey
	var v Value
	copy(v[:], b.Data[off:off+sizeOfValue])
	return v
}

func (b *BucketPage) setSlot(i int, key Key, value Value) {
	off := b.slotOffset(i)
	binary.LittleEndian.PutUint64(b.Data[off:], uint64(key))
	copy(b.Data[off+sizeOfKey:off+pairSize], value[:])
}

// Insert rejects an exact duplicate (key, value) pair and otherwise
// writes into the first non-readable slot (tombstone or fresh),
// marking it occupied and readable. Returns false if the bucket is
// full.
func (b *BucketPage) Insert(key Key, value Value, cmp CmpFunc) bool {
	freeSlot := -1
	for i := 0; i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			if freeSlot == -1 {
				freeSlot = i
			}
			continue
		}
		if !b.IsReadable(i) {
			if freeSlot == -1 {
				freeSlot = i
			}
			continue
		}
		if cmp(b.KeyAt(i), key) == 0 && b.ValueAt(i) == value {
			return false
		}
	}

	if freeSlot == -1 {
		return false
	}

	b.setSlot(freeSlot, key, value)
	b.setBit(bucketOccupiedOffset, freeSlot)
	b.setBit(bucketReadableOffset, freeSlot)
	return true
}

// Remove clears the readable bit of the first matching (key, value)
// pair, leaving the occupied bit set as a tombstone so later lookups
// still probe past it.
func (b *BucketPage) Remove(key Key, value Value, cmp CmpFunc) bool {
	for i := 0; i < BucketArraySize; i++ {
		if !b.IsReadable(i) {
			continue
		}
		if cmp(b.KeyAt(i), key) == 0 && b.ValueAt(i) == value {
			b.clearBit(bucketReadableOffset, i)
			return true
		}
	}
	return false
}

// GetValue collects every readable value whose key matches under cmp,
// stopping the scan at the first unoccupied slot.
func (b *BucketPage) GetValue(key Key, cmp CmpFunc) ([]Value, bool) {
	var out []Value
	for i := 0; i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) && cmp(b.KeyAt(i), key) == 0 {
			out = append(out, b.ValueAt(i))
		}
	}
	return out, len(out) > 0
}

// GetAll snapshots every readable pair in slot order, used when a
// split or merge needs to rehash a bucket's contents.
func (b *BucketPage) GetAll() []Pair {
	var out []Pair
	for i := 0; i < BucketArraySize; i++ {
		if b.IsReadable(i) {
			out = append(out, Pair{Key: b.KeyAt(i), Value: b.ValueAt(i)})
		}
	}
	return out
}

// Clear zeroes both bitmaps, discarding every slot (occupied and
// tombstoned alike). The array payload is left untouched since it is
// only ever read through a readable/occupied bit.
func (b *BucketPage) Clear() {
	for i := bucketOccupiedOffset; i < bucketArrayOffset; i++ {
		b.Data[i] = 0
	}
}

func (b *BucketPage) IsFull() bool {
	for i := 0; i < BucketArraySize; i++ {
		if !b.IsReadable(i) {
			return false
		}
	}
	return true
}

func (b *BucketPage) IsEmpty() bool {
	for i := 0; i < BucketArraySize; i++ {
		if b.IsReadable(i) {
			return false
		}
	}
	return true
}

func (b *BucketPage) NumReadable() int {
	n := 0
	for i := 0; i < BucketArraySize; i++ {
		if b.IsReadable(i) {
			n++
		}
	}
	return n
}
