// Package txn groups the reads and writes of one file-system operation.
//
// An Op loads disk objects into private buffers on first read and keeps every
// write to itself. Commit installs the dirty buffers into their blocks in the
// block cache in one step; an Op that is never committed has no effect. This
// is what makes each command all-or-nothing: a command that fails part-way
// simply drops its Op.
//
// Objects have sizes. Implicit in the code is a static schema: each block
// holds objects of one size (the superblock, bitmap and data blocks are whole
// blocks, the inode table holds inode-sized objects), so objects never
// overlap as long as callers use the right size for a block number.
package txn

import (
	"sort"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/bcache"
	"github.com/mit-pdos/go-blockfs/buf"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// Op is an in-progress operation.
//
// Call Commit to make the operation's writes visible.
// To abort the operation simply stop using it.
type Op struct {
	cache *bcache.Bcache
	bufs  *buf.BufMap // map of bufs read/written by this operation
}

// Begin starts an operation with no writes.
func Begin(cache *bcache.Bcache) *Op {
	op := &Op{
		cache: cache,
		bufs:  buf.MkBufMap(),
	}
	util.DPrintf(5, "Begin: %p\n", op)
	return op
}

// ReadBuf returns the operation's buffer for the object at addr, loading it
// from the cache on first use.
func (op *Op) ReadBuf(addr addr.Addr, sz uint64) *buf.Buf {
	b := op.bufs.Lookup(addr)
	if b == nil {
		blk := op.cache.Read(addr.Blkno)
		b = buf.MkBufLoad(addr, sz, blk)
		op.bufs.Insert(b)
		return b
	}
	if b.Sz != sz {
		panic("ReadBuf: size mismatch")
	}
	return b
}

// ReadBlock returns the buffer for a whole block.
func (op *Op) ReadBlock(bn common.Bnum) *buf.Buf {
	return op.ReadBuf(addr.MkAddr(bn, 0), common.NBITBLOCK)
}

// OverWrite writes an object to addr without reading it
func (op *Op) OverWrite(addr addr.Addr, sz uint64, data []byte) {
	var b = op.bufs.Lookup(addr)
	if b == nil {
		b = buf.MkBuf(addr, sz, data)
		b.SetDirty()
		op.bufs.Insert(b)
	} else {
		if sz != b.Sz {
			panic("overwrite")
		}
		b.Data = data
		b.SetDirty()
	}
}

// ZeroBlock overwrites block bn with zeros.
func (op *Op) ZeroBlock(bn common.Bnum) {
	op.OverWrite(addr.MkAddr(bn, 0), common.NBITBLOCK, make([]byte, disk.BlockSize))
}

// NDirty reports the number of objects this operation has modified.
func (op *Op) NDirty() uint64 {
	return op.bufs.Ndirty()
}

// installBufs installs the dirty bufs into their blocks and returns the
// blocks. A buf may only partially update a disk block and several bufs may
// apply to the same disk block.
func (op *Op) installBufs(bufs []*buf.Buf) (map[common.Bnum]disk.Block, []common.Bnum) {
	blks := make(map[common.Bnum]disk.Block)
	for _, b := range bufs {
		if b.Sz == common.NBITBLOCK {
			blks[b.Addr.Blkno] = util.CloneByteSlice(b.Data)
		} else {
			var blk disk.Block
			mapblk, ok := blks[b.Addr.Blkno]
			if ok {
				blk = mapblk
			} else {
				blk = op.cache.Read(b.Addr.Blkno)
				blks[b.Addr.Blkno] = blk
			}
			b.Install(blk)
		}
	}
	blknos := make([]common.Bnum, 0, len(blks))
	for bn := range blks {
		blknos = append(blknos, bn)
	}
	sort.Slice(blknos, func(i, j int) bool { return blknos[i] < blknos[j] })
	return blks, blknos
}

// Commit installs the operation's writes into the cache. The Op must not be
// used afterwards.
func (op *Op) Commit() {
	bufs := op.bufs.DirtyBufs()
	if len(bufs) == 0 {
		util.DPrintf(5, "commit read-only op %p\n", op)
		return
	}
	blks, blknos := op.installBufs(bufs)
	util.DPrintf(3, "Commit %p: %d bufs, blocks %v\n", op, len(bufs), blknos)
	op.cache.MultiWrite(blks)
	op.bufs = buf.MkBufMap()
}
