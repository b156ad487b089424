package page

import "encoding/binary"

const (
	// MaxDepth bounds both global and local depth; the directory never
	// grows past 1<<MaxDepth live entries.
	MaxDepth = 9
	// MaxDirectorySize is the dense array length backing the directory
	// regardless of the live global depth.
	MaxDirectorySize = 1 << MaxDepth

	dirLSNOffset           = 0
	dirPageIDOffset        = dirLSNOffset + 4
	dirGlobalDepthOffset   = dirPageIDOffset + 4
	dirLocalDepthsOffset   = dirGlobalDepthOffset + 4
	dirBucketPageIDsOffset = dirLocalDepthsOffset + MaxDirectorySize
)

// DirectoryPage is the global/local-depth and bucket-page-id table for
// one extendible hash table, resident in a single buffer-pool page.
// On-disk layout: lsn u32 | page_id u32 | global_depth u32 |
// local_depths u8[512] | bucket_page_ids u32[512], packed,
// little-endian.
type DirectoryPage struct {
	Data []byte
}

func NewDirectoryPage(p *Page) *DirectoryPage {
	return &DirectoryPage{Data: p.Data[:]}
}

func (d *DirectoryPage) GetLSN() uint32 {
	return binary.LittleEndian.Uint32(d.Data[dirLSNOffset:])
}

func (d *DirectoryPage) SetLSN(lsn uint32) {
	binary.LittleEndian.PutUint32(d.Data[dirLSNOffset:], lsn)
}

func (d *DirectoryPage) GetPageID() ID {
	return ID(binary.LittleEndian.Uint32(d.Data[dirPageIDOffset:]))
}

func (d *DirectoryPage) SetPageID(id ID) {
	binary.LittleEndian.PutUint32(d.Data[dirPageIDOffset:], uint32(id))
}

func (d *DirectoryPage) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.Data[dirGlobalDepthOffset:])
}

func (d *DirectoryPage) setGlobalDepth(depth uint32) {
	binary.LittleEndian.PutUint32(d.Data[dirGlobalDepthOffset:], depth)
}

func (d *DirectoryPage) IncrGlobalDepth() {
	d.setGlobalDepth(d.GetGlobalDepth() + 1)
}

func (d *DirectoryPage) DecrGlobalDepth() {
	d.setGlobalDepth(d.GetGlobalDepth() - 1)
}

func (d *DirectoryPage) GetLocalDepth(i int) uint32 {
	return uint32(d.Data[dirLocalDepthsOffset+i])
}

func (d *DirectoryPage) SetLocalDepth(i int, depth uint32) {
	d.Data[dirLocalDepthsOffset+i] = byte(depth)
}

func (d *DirectoryPage) IncrLocalDepth(i int) {
	d.SetLocalDepth(i, d.GetLocalDepth(i)+1)
}

func (d *DirectoryPage) DecrLocalDepth(i int) {
	d.SetLocalDepth(i, d.GetLocalDepth(i)-1)
}

func (d *DirectoryPage) GetBucketPageID(i int) ID {
	off := dirBucketPageIDsOffset + i*4
	return ID(binary.LittleEndian.Uint32(d.Data[off:]))
}

func (d *DirectoryPage) SetBucketPageID(i int, id ID) {
	off := dirBucketPageIDsOffset + i*4
	binary.LittleEndian.PutUint32(d.Data[off:], uint32(id))
}

// Size is the number of live directory entries, 1<<global_depth.
func (d *DirectoryPage) Size() int { return 1 << d.GetGlobalDepth() }

// Mask is Size()-1, the bitmask a hash gets AND'd against to find a
// bucket index.
func (d *DirectoryPage) Mask() uint32 { return uint32(d.Size() - 1) }

// SplitImageIndex returns the directory index that differs from i only
// in the (local_depth(i)-1)-th bit, computed with i's current local
// depth.
func (d *DirectoryPage) SplitImageIndex(i int) int {
	localDepth := d.GetLocalDepth(i)
	if localDepth == 0 {
		return i
	}
	return i ^ (1 << (localDepth - 1))
}

// CanShrink reports whether every live local depth is strictly less
// than the global depth, the precondition for halving the directory.
func (d *DirectoryPage) CanShrink() bool {
	gd := d.GetGlobalDepth()
	size := d.Size()
	for i := 0; i < size; i++ {
		if d.GetLocalDepth(i) >= gd {
			return false
		}
	}
	return true
}
