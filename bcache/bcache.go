// Package bcache is a write-back block cache over a disk.Disk.
//
// Every block read is kept in memory; writes only reach the disk on Flush,
// which is the single durability point of the file system.
package bcache

import (
	"fmt"
	"sort"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

type Bcache struct {
	d      disk.Disk
	size   uint64
	blocks map[common.Bnum]disk.Block
	dirty  map[common.Bnum]bool
}

// MkBcache loads all of d into memory.
func MkBcache(d disk.Disk) (*Bcache, error) {
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	c := &Bcache{
		d:      d,
		size:   sz,
		blocks: make(map[common.Bnum]disk.Block, sz),
		dirty:  make(map[common.Bnum]bool),
	}
	for bn := uint64(0); bn < sz; bn++ {
		blk, err := d.Read(bn)
		if err != nil {
			return nil, fmt.Errorf("load block %d: %w", bn, err)
		}
		c.blocks[bn] = blk
	}
	util.DPrintf(1, "MkBcache: loaded %d blocks\n", sz)
	return c, nil
}

// Size reports the number of blocks in the underlying disk.
func (c *Bcache) Size() uint64 {
	return c.size
}

// Read returns a copy of block bn.
func (c *Bcache) Read(bn common.Bnum) disk.Block {
	blk, ok := c.blocks[bn]
	if !ok {
		panic(fmt.Errorf("bcache: out-of-bounds read at %v", bn))
	}
	return util.CloneByteSlice(blk)
}

// Write replaces block bn; the cache takes ownership of blk.
func (c *Bcache) Write(bn common.Bnum, blk disk.Block) {
	if bn >= c.size {
		panic(fmt.Errorf("bcache: out-of-bounds write at %v", bn))
	}
	if uint64(len(blk)) != disk.BlockSize {
		panic(fmt.Errorf("bcache: write of %d bytes", len(blk)))
	}
	c.blocks[bn] = blk
	c.dirty[bn] = true
}

// MultiWrite installs a batch of blocks.
func (c *Bcache) MultiWrite(blks map[common.Bnum]disk.Block) {
	for bn, blk := range blks {
		c.Write(bn, blk)
	}
}

// Ndirty reports how many blocks have not been flushed.
func (c *Bcache) Ndirty() uint64 {
	return uint64(len(c.dirty))
}

// Flush writes dirty blocks to disk in ascending order and issues a barrier.
func (c *Bcache) Flush() error {
	bns := make([]common.Bnum, 0, len(c.dirty))
	for bn := range c.dirty {
		bns = append(bns, bn)
	}
	sort.Slice(bns, func(i, j int) bool { return bns[i] < bns[j] })
	for _, bn := range bns {
		if err := c.d.Write(bn, c.blocks[bn]); err != nil {
			return err
		}
		delete(c.dirty, bn)
	}
	util.DPrintf(1, "Flush: wrote %d blocks\n", len(bns))
	return c.d.Barrier()
}

// Close flushes and closes the disk.
func (c *Bcache) Close() error {
	if err := c.Flush(); err != nil {
		c.d.Close()
		return err
	}
	return c.d.Close()
}
