// Package buffer implements the fixed-size buffer pool: a frame table,
// free list, and LRU replacer guarded by a single coarse latch, plus
// the sharded parallel front over N such instances.
package buffer

import (
	"sync"

	"bufhash/pkg/errs"
	"bufhash/pkg/storage/disk"
	"bufhash/pkg/storage/page"
	"bufhash/pkg/wal"

	"github.com/puzpuzpuz/xsync/v3"
)

// Instance is one shard of the buffer pool: a contiguous frame array,
// a free list, an LRU replacer, and the frame table mapping resident
// page ids to frame indices. Every public method holds latch for its
// entire body, including the disk I/O it triggers — a documented
// limitation of this pedagogical core (spec.md §5).
type Instance struct {
	latch sync.Mutex

	frames     []page.Page
	frameTable *xsync.MapOf[page.ID, page.FrameID]
	freeList   []page.FrameID
	replacer   *LRUReplacer

	disk *disk.FileManager
	log  wal.Manager

	nextPageID    page.ID
	numInstances  int32
	instanceIndex int32
}

// NewInstance builds one shard. numInstances and instanceIndex are 1
// and 0 for a standalone pool; the parallel pool passes the real
// shard count and index so every id this instance allocates satisfies
// id mod numInstances == instanceIndex.
func NewInstance(poolSize int, dm *disk.FileManager, lm wal.Manager, numInstances, instanceIndex int32) *Instance {
	if poolSize <= 0 {
		panic("buffer: pool size must be positive")
	}

	freeList := make([]page.FrameID, poolSize)
	for i := range freeList {
		freeList[i] = page.FrameID(i)
	}

	frames := make([]page.Page, poolSize)
	for i := range frames {
		frames[i].SetID(page.InvalidID)
	}

	return &Instance{
		frames:        frames,
		frameTable:    xsync.NewMapOf[page.ID, page.FrameID](),
		freeList:      freeList,
		replacer:      NewLRUReplacer(poolSize),
		disk:          dm,
		log:           lm,
		nextPageID:    page.ID(instanceIndex),
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
	}
}

// PoolSize returns the number of frames this instance owns.
func (b *Instance) PoolSize() int { return len(b.frames) }

// FetchPage pins and returns the page, reading it from disk on a
// cache miss. It fails when every frame is pinned or when the disk
// read fails; after a failed read the drawn frame is reset and returned
// to the free list.
func (b *Instance) FetchPage(id page.ID) (*page.Page, error) {
	b.latch.Lock()
	defer b.latch.Unlock()

	if frameID, ok := b.frameTable.Load(id); ok {
		frame := &b.frames[frameID]
		frame.IncPinCount()
		b.replacer.Pin(frameID)
		return frame, nil
	}

	frameID, err := b.victim()
	if err != nil {
		return nil, err
	}

	frame := &b.frames[frameID]
	if frame.ID() != page.InvalidID {
		b.frameTable.Delete(frame.ID())
	}
	frame.SetID(id)
	frame.SetPinCount(1)
	frame.SetDirty(false)

	if err := b.disk.ReadPage(id, frame); err != nil {
		frame.Clear()
		b.freeList = append(b.freeList, frameID)
		return nil, err
	}

	b.replacer.Pin(frameID)
	b.frameTable.Store(id, frameID)
	return frame, nil
}

// NewPage allocates a fresh page id and pins a zeroed frame for it.
func (b *Instance) NewPage() (*page.Page, error) {
	b.latch.Lock()
	defer b.latch.Unlock()

	if b.allPinned() {
		return nil, errs.New(errs.KindExhausted, "buffer.NewPage")
	}

	frameID, err := b.victim()
	if err != nil {
		return nil, err
	}

	id := b.allocatePageID()

	frame := &b.frames[frameID]
	frame.Clear()
	frame.SetID(id)
	frame.SetPinCount(1)
	frame.SetDirty(false)

	if err := b.disk.WritePage(id, frame); err != nil {
		return nil, err
	}

	b.frameTable.Store(id, frameID)
	return frame, nil
}

// UnpinPage drops one pin on id. isDirty is OR'd into the frame's
// dirty flag; it never clears it. Returns false if id is not
// resident or was already fully unpinned.
func (b *Instance) UnpinPage(id page.ID, isDirty bool) bool {
	b.latch.Lock()
	defer b.latch.Unlock()

	frameID, ok := b.frameTable.Load(id)
	if !ok {
		return false
	}

	frame := &b.frames[frameID]
	if frame.PinCount() == 0 {
		return false
	}

	frame.MarkDirty(isDirty)
	if frame.DecPinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes id's resident payload to disk. It does not clear
// the dirty flag — spec.md leaves that unspecified, so callers must
// not rely on it being cleared.
func (b *Instance) FlushPage(id page.ID) bool {
	b.latch.Lock()
	defer b.latch.Unlock()

	if id == page.InvalidID {
		return false
	}
	frameID, ok := b.frameTable.Load(id)
	if !ok {
		return false
	}
	frame := &b.frames[frameID]
	if err := b.disk.WritePage(id, frame); err != nil {
		return false
	}
	return true
}

// FlushAllPages writes every resident, dirty page to disk. It walks the
// frame table rather than the raw frame array, so a never-allocated
// frame is never mistaken for page id 0.
func (b *Instance) FlushAllPages() {
	b.latch.Lock()
	defer b.latch.Unlock()

	b.frameTable.Range(func(id page.ID, frameID page.FrameID) bool {
		frame := &b.frames[frameID]
		if frame.IsDirty() {
			_ = b.disk.WritePage(id, frame)
		}
		return true
	})
}

// DeletePage removes id from the pool and tells the disk manager to
// free it. Deleting a page that is not resident is vacuously true;
// deleting a pinned page fails.
func (b *Instance) DeletePage(id page.ID) bool {
	b.latch.Lock()
	defer b.latch.Unlock()

	frameID, ok := b.frameTable.Load(id)
	if !ok {
		b.disk.DeallocatePage(id)
		return true
	}

	frame := &b.frames[frameID]
	if frame.PinCount() > 0 {
		return false
	}

	if frame.IsDirty() {
		_ = b.disk.WritePage(id, frame)
	}

	b.frameTable.Delete(id)
	b.replacer.Pin(frameID) // stop tracking it as evictable
	frame.Clear()
	b.freeList = append(b.freeList, frameID)

	b.disk.DeallocatePage(id)
	return true
}

// victim obtains a frame to (re)use: the free list's front, or the
// replacer's coldest unpinned frame. The candidate's dirty payload is
// flushed under its old page id before the caller overwrites its
// identity.
func (b *Instance) victim() (page.FrameID, error) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	frameID, ok := b.replacer.Victim()
	if !ok {
		return 0, errs.New(errs.KindExhausted, "buffer.victim")
	}

	old := &b.frames[frameID]
	if old.ID() != page.InvalidID {
		if old.IsDirty() {
			if err := b.disk.WritePage(old.ID(), old); err != nil {
				return 0, err
			}
		}
		b.frameTable.Delete(old.ID())
	}
	return frameID, nil
}

func (b *Instance) allPinned() bool {
	for i := range b.frames {
		if b.frames[i].ID() == page.InvalidID {
			return false
		}
		if b.frames[i].PinCount() == 0 {
			return false
		}
	}
	return len(b.freeList) == 0 && b.replacer.Size() == 0
}

// allocatePageID returns the next id owned by this shard and advances
// by numInstances, preserving id mod numInstances == instanceIndex.
func (b *Instance) allocatePageID() page.ID {
	id := b.nextPageID
	b.nextPageID += page.ID(b.numInstances)
	if int32(id)%b.numInstances != b.instanceIndex {
		panic(errs.New(errs.KindIntegrityViolation, "buffer.allocatePageID: shard invariant violated"))
	}
	return id
}
