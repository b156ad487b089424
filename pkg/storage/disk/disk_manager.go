// Package disk implements the blocking, byte-granular fixed-page store
// the buffer pool treats as an external collaborator: it only reads,
// writes, and (de)allocates whole pages, never page identifiers with
// sharding semantics — that invariant belongs to the buffer pool.
package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"bufhash/pkg/errs"
	"bufhash/pkg/storage/page"
)

// Manager is the disk-side contract the buffer pool consumes.
// AllocatePage here is a simple monotonic counter; a buffer pool
// running N parallel instances never calls it — it maintains its own
// mod-N counter per spec.md §4.2.2 and only uses ReadPage/WritePage/
// DeallocatePage on this interface.
type Manager interface {
	ReadPage(id page.ID, p *page.Page) error
	WritePage(id page.ID, p *page.Page) error
	AllocatePage() page.ID
	DeallocatePage(id page.ID)
	Close() error
}

// FileManager is a Manager backed by one flat file, one page per
// page.Size-byte slot, following the teacher's layout exactly.
type FileManager struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	nextPageID page.ID
}

// NewFileManager opens or creates dbPath, creating its parent directory
// if necessary, and recovers nextPageID from the file's current size.
func NewFileManager(dbPath string) (*FileManager, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("disk: mkdir %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o664)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", dbPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", dbPath, err)
	}

	return &FileManager{
		file:       f,
		path:       dbPath,
		nextPageID: page.ID(info.Size() / page.Size),
	}, nil
}

func (d *FileManager) Close() error { return d.file.Close() }

// ReadPage fills p.Data from the page's on-disk slot. It never touches
// p's metadata (pin count, dirty flag) — that is the buffer pool's job.
func (d *FileManager) ReadPage(id page.ID, p *page.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * int64(page.Size)
	if _, err := d.file.Seek(offset, io.SeekStart); err != nil {
		return errs.Wrap(errs.KindIO, "disk.ReadPage", err)
	}

	n, err := io.ReadFull(d.file, p.Data[:])
	if err != nil {
		return errs.Wrap(errs.KindIO, "disk.ReadPage", err)
	}
	if n != page.Size {
		return errs.New(errs.KindIO, "disk.ReadPage: short read")
	}
	return nil
}

// WritePage writes p.Data to the page's on-disk slot, extending the
// file if this is the first write to that slot.
func (d *FileManager) WritePage(id page.ID, p *page.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * int64(page.Size)
	if _, err := d.file.Seek(offset, io.SeekStart); err != nil {
		return errs.Wrap(errs.KindIO, "disk.WritePage", err)
	}
	if _, err := d.file.Write(p.Data[:]); err != nil {
		return errs.Wrap(errs.KindIO, "disk.WritePage", err)
	}
	return nil
}

// AllocatePage hands back the next monotonic id and advances by one.
// Only meaningful for a single, unsharded buffer pool instance.
func (d *FileManager) AllocatePage() page.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextPageID
	d.nextPageID++
	return id
}

// DeallocatePage is intentionally a no-op: this core never reclaims
// disk space, it only stops tracking the id in memory.
func (d *FileManager) DeallocatePage(page.ID) {}
