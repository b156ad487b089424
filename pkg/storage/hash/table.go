// Package hash implements the on-disk extendible hash table: a
// directory page mapping hash-prefixed indices to bucket pages, grown
// and shrunk as buckets split and merge.
package hash

import (
	"sync"

	"bufhash/pkg/errs"
	"bufhash/pkg/storage/page"
)

// Pool is the subset of the buffer pool the table needs to pin, fetch,
// allocate, and delete pages. Both buffer.Instance and
// buffer.ParallelPool satisfy it.
type Pool interface {
	FetchPage(id page.ID) (*page.Page, error)
	NewPage() (*page.Page, error)
	UnpinPage(id page.ID, isDirty bool) bool
	DeletePage(id page.ID) bool
}

// HashFunc computes an unsigned 32-bit hash of a key. The table never
// assumes anything about its distribution beyond what extendible
// hashing requires.
type HashFunc func(key page.Key) uint32

// Table is the extendible hash table: one directory page fronting a
// growable set of bucket pages, all pinned through a Pool. A single
// reader/writer latch guards the whole directory-to-bucket mapping.
type Table struct {
	mu sync.RWMutex

	pool      Pool
	hashFn    HashFunc
	cmpFn     page.CmpFunc
	dirPageID page.ID
}

// NewTable allocates a fresh directory page and a single initial
// bucket, global depth 0, and returns a Table ready for use.
func NewTable(pool Pool, hashFn HashFunc, cmpFn page.CmpFunc) (*Table, error) {
	dirFrame, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	dir := page.NewDirectoryPage(dirFrame)
	dir.SetPageID(dirFrame.ID())

	bucketFrame, err := pool.NewPage()
	if err != nil {
		pool.UnpinPage(dirFrame.ID(), false)
		pool.DeletePage(dirFrame.ID())
		return nil, err
	}
	bucket := page.NewBucketPage(bucketFrame)
	bucket.Clear()
	dir.SetBucketPageID(0, bucketFrame.ID())
	dir.SetLocalDepth(0, 0)

	pool.UnpinPage(bucketFrame.ID(), true)
	pool.UnpinPage(dirFrame.ID(), true)

	return &Table{
		pool:      pool,
		hashFn:    hashFn,
		cmpFn:     cmpFn,
		dirPageID: dirFrame.ID(),
	}, nil
}

// OpenTable wraps an already-initialized directory page (e.g. recovered
// from disk), skipping NewTable's allocation.
func OpenTable(pool Pool, dirPageID page.ID, hashFn HashFunc, cmpFn page.CmpFunc) *Table {
	return &Table{pool: pool, hashFn: hashFn, cmpFn: cmpFn, dirPageID: dirPageID}
}

// DirectoryPageID reports the id of the table's directory page.
func (t *Table) DirectoryPageID() page.ID { return t.dirPageID }

func (t *Table) bucketIndex(dir *page.DirectoryPage, key page.Key) int {
	return int(t.hashFn(key) & dir.Mask())
}

// Get returns every value stored under key.
func (t *Table) Get(key page.Key) ([]page.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirFrame, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return nil, err
	}
	dir := page.NewDirectoryPage(dirFrame)
	idx := t.bucketIndex(dir, key)
	bucketID := dir.GetBucketPageID(idx)

	bucketFrame, err := t.pool.FetchPage(bucketID)
	if err != nil {
		t.pool.UnpinPage(t.dirPageID, false)
		return nil, err
	}
	bucket := page.NewBucketPage(bucketFrame)
	values, _ := bucket.GetValue(key, t.cmpFn)

	t.pool.UnpinPage(bucketID, false)
	t.pool.UnpinPage(t.dirPageID, false)
	return values, nil
}

// Insert adds (key, value), splitting buckets as needed. It reports
// false if the exact pair already exists, and errs.KindExhausted if
// the directory cannot grow far enough to make room.
func (t *Table) Insert(key page.Key, value page.Value) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(key, value, 0)
}

func (t *Table) insertLocked(key page.Key, value page.Value, depth int) (bool, error) {
	if depth > page.MaxDepth+1 {
		return false, errs.New(errs.KindExhausted, "hash.Insert")
	}

	dirFrame, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return false, err
	}
	dir := page.NewDirectoryPage(dirFrame)
	idx := t.bucketIndex(dir, key)
	bucketID := dir.GetBucketPageID(idx)

	bucketFrame, err := t.pool.FetchPage(bucketID)
	if err != nil {
		t.pool.UnpinPage(t.dirPageID, false)
		return false, err
	}
	bucket := page.NewBucketPage(bucketFrame)

	if !bucket.IsFull() {
		ok := bucket.Insert(key, value, t.cmpFn)
		t.pool.UnpinPage(bucketID, ok)
		t.pool.UnpinPage(t.dirPageID, false)
		return ok, nil
	}

	return t.splitInsert(dir, bucket, idx, key, value, depth)
}

// splitInsert implements spec's SplitInsert.
func (t *Table) splitInsert(dir *page.DirectoryPage, bucket *page.BucketPage, idx int, key page.Key, value page.Value, depth int) (bool, error) {
	bucketID := dir.GetBucketPageID(idx)
	oldLocalDepth := dir.GetLocalDepth(idx)

	if oldLocalDepth >= page.MaxDepth {
		t.pool.UnpinPage(bucketID, false)
		t.pool.UnpinPage(t.dirPageID, false)
		return false, errs.New(errs.KindExhausted, "hash.SplitInsert: local depth at MAX_DEPTH")
	}

	// Allocate before mutating the directory, so a failed allocation
	// leaves the index untouched.
	newBucketFrame, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(bucketID, false)
		t.pool.UnpinPage(t.dirPageID, false)
		return false, err
	}
	newBucket := page.NewBucketPage(newBucketFrame)
	newBucket.Clear()
	newBucketID := newBucketFrame.ID()

	dir.IncrLocalDepth(idx)
	splitIdx := dir.SplitImageIndex(idx)

	if dir.GetLocalDepth(idx) > dir.GetGlobalDepth() {
		t.growDirectory(dir)
	} else {
		dir.IncrLocalDepth(splitIdx)
	}
	dir.SetBucketPageID(splitIdx, newBucketID)

	// Rehash: snapshot the old bucket, clear it, and redistribute by
	// the newly significant bit: pairs whose bit matches idx's stay in
	// the old bucket, the rest move to the new one at splitIdx.
	splitBit := uint32(1) << oldLocalDepth
	idxBit := uint32(idx) & splitBit
	pairs := bucket.GetAll()
	bucket.Clear()
	for _, pr := range pairs {
		if t.hashFn(pr.Key)&splitBit != idxBit {
			newBucket.Insert(pr.Key, pr.Value, t.cmpFn)
		} else {
			bucket.Insert(pr.Key, pr.Value, t.cmpFn)
		}
	}

	var ok bool
	if t.hashFn(key)&splitBit != idxBit {
		ok = newBucket.Insert(key, value, t.cmpFn)
	} else {
		ok = bucket.Insert(key, value, t.cmpFn)
	}

	t.pool.UnpinPage(newBucketID, true)
	t.pool.UnpinPage(bucketID, true)
	t.pool.UnpinPage(t.dirPageID, true)

	if ok {
		return true, nil
	}

	// Pathological hash: the triggering pair still collided into a
	// full bucket after the split. Recurse in place, bounded by
	// depth, instead of re-entering the public, latch-acquiring
	// Insert.
	return t.insertLocked(key, value, depth+1)
}

// growDirectory doubles the live directory size, mirroring every
// entry's bucket id and local depth into its new upper-half twin.
func (t *Table) growDirectory(dir *page.DirectoryPage) {
	oldSize := dir.Size()
	dir.IncrGlobalDepth()
	for i := 0; i < oldSize; i++ {
		dir.SetBucketPageID(oldSize+i, dir.GetBucketPageID(i))
		dir.SetLocalDepth(oldSize+i, dir.GetLocalDepth(i))
	}
}

// Remove deletes the (key, value) pair, merging the bucket (and
// shrinking the directory) if removal empties it.
func (t *Table) Remove(key page.Key, value page.Value) (bool, error) {
	t.mu.Lock()

	dirFrame, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		t.mu.Unlock()
		return false, err
	}
	dir := page.NewDirectoryPage(dirFrame)
	idx := t.bucketIndex(dir, key)
	bucketID := dir.GetBucketPageID(idx)

	bucketFrame, err := t.pool.FetchPage(bucketID)
	if err != nil {
		t.pool.UnpinPage(t.dirPageID, false)
		t.mu.Unlock()
		return false, err
	}
	bucket := page.NewBucketPage(bucketFrame)

	if !bucket.Remove(key, value, t.cmpFn) {
		t.pool.UnpinPage(bucketID, false)
		t.pool.UnpinPage(t.dirPageID, false)
		t.mu.Unlock()
		return false, nil
	}

	empty := bucket.IsEmpty()
	t.pool.UnpinPage(bucketID, true)
	t.pool.UnpinPage(t.dirPageID, false)
	t.mu.Unlock()

	if empty {
		if err := t.merge(key); err != nil {
			return true, err
		}
	}
	return true, nil
}

// merge implements spec's Merge, reacquiring the write latch per the
// protocol's "invoke Merge (reacquiring latches)" step. idx is
// recomputed from key against the freshly fetched directory rather
// than carried across the unlock, since another writer may have
// grown or shrunk the directory while the latch was released.
func (t *Table) merge(key page.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirFrame, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return err
	}
	dir := page.NewDirectoryPage(dirFrame)
	idx := t.bucketIndex(dir, key)

	localDepth := dir.GetLocalDepth(idx)
	splitIdx := dir.SplitImageIndex(idx)
	if localDepth == 0 || localDepth != dir.GetLocalDepth(splitIdx) {
		t.pool.UnpinPage(t.dirPageID, false)
		return nil
	}

	emptyBucketID := dir.GetBucketPageID(idx)

	emptyFrame, err := t.pool.FetchPage(emptyBucketID)
	if err != nil {
		t.pool.UnpinPage(t.dirPageID, false)
		return err
	}
	stillEmpty := page.NewBucketPage(emptyFrame).IsEmpty()
	t.pool.UnpinPage(emptyBucketID, false)
	if !stillEmpty {
		t.pool.UnpinPage(t.dirPageID, false)
		return nil
	}

	survivorID := dir.GetBucketPageID(splitIdx)

	// idx and splitIdx are the two slots guaranteed to reference the
	// merging buckets; each may also have one further mirror sharing
	// global_depth-1's bit, which needs the same page id and a
	// decremented local depth to preserve the invariant.
	t.rewireMergeNeighbor(dir, idx, survivorID)
	t.rewireMergeNeighbor(dir, splitIdx, survivorID)

	dir.DecrLocalDepth(idx)
	dir.DecrLocalDepth(splitIdx)
	dir.SetBucketPageID(idx, survivorID)

	t.pool.DeletePage(emptyBucketID)

	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}

	t.pool.UnpinPage(t.dirPageID, true)
	return nil
}

// rewireMergeNeighbor repoints bucketIndex's further mirror (the slot
// bucket_interval away under the current global depth, if it shares
// bucketIndex's page id) to survivorID and drops its local depth,
// keeping the directory invariant intact one level beyond the
// immediate split pair.
func (t *Table) rewireMergeNeighbor(dir *page.DirectoryPage, bucketIndex int, survivorID page.ID) {
	interval := 1 << (dir.GetGlobalDepth() - 1)
	size := dir.Size()

	if bucketIndex+interval < size && dir.GetBucketPageID(bucketIndex) == dir.GetBucketPageID(bucketIndex+interval) {
		dir.DecrLocalDepth(bucketIndex + interval)
		dir.SetBucketPageID(bucketIndex+interval, survivorID)
	} else if bucketIndex-interval >= 0 && dir.GetBucketPageID(bucketIndex) == dir.GetBucketPageID(bucketIndex-interval) {
		dir.DecrLocalDepth(bucketIndex - interval)
		dir.SetBucketPageID(bucketIndex-interval, survivorID)
	}
}
