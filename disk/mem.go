package disk

import (
	"fmt"
	"sync"
)

var _ Disk = (*MemDisk)(nil)

// MemDisk keeps every block in memory. Tests run the engine on it.
type MemDisk struct {
	mu     sync.RWMutex
	blocks [][BlockSize]byte
}

func NewMemDisk(numBlocks uint64) *MemDisk {
	return &MemDisk{blocks: make([][BlockSize]byte, numBlocks)}
}

func (d *MemDisk) check(a uint64, what string) {
	if a >= uint64(len(d.blocks)) {
		panic(fmt.Errorf("%s of block %d past end of %d-block disk", what, a, len(d.blocks)))
	}
}

func (d *MemDisk) ReadTo(a uint64, buf Block) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.check(a, "read")
	copy(buf, d.blocks[a][:])
	return nil
}

func (d *MemDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *MemDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("write of %d bytes is not one block", len(v)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(a, "write")
	copy(d.blocks[a][:], v)
	return nil
}

// Size needs no lock: the block array is never resized.
func (d *MemDisk) Size() (uint64, error) {
	return uint64(len(d.blocks)), nil
}

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error { return nil }
