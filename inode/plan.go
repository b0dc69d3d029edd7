package inode

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// BlockList is the physical layout of a file: its data blocks in logical
// order and its indirect block (NULLBNUM if none).
type BlockList struct {
	Data     []common.Bnum
	Indirect common.Bnum
}

// ResizePlan describes how to turn a BlockList into one for a new size.
type ResizePlan struct {
	Keep          []common.Bnum // data blocks that stay, in logical order
	Free          []common.Bnum // data blocks to release
	NAlloc        uint64        // data blocks to allocate after Keep
	AllocIndirect bool
	FreeIndirect  bool
}

// nblocks is the number of data blocks a file of size bytes maps.
func nblocks(size uint64) uint64 {
	return util.RoundUp(size, disk.BlockSize)
}

func needsIndirect(n uint64) bool {
	return n > common.NDIRECT
}

// PlanResize computes the blocks to keep, free and allocate to resize a file
// with block list bl to newSize bytes. It does not touch any state.
func PlanResize(bl BlockList, newSize uint64) (ResizePlan, error) {
	if newSize > common.MaxFileSize {
		return ResizePlan{}, fmt.Errorf("size %d exceeds %d: %w",
			newSize, common.MaxFileSize, common.ErrFileTooLarge)
	}
	cur := uint64(len(bl.Data))
	want := nblocks(newSize)
	p := ResizePlan{}
	if want <= cur {
		p.Keep = bl.Data[:want]
		p.Free = bl.Data[want:]
	} else {
		p.Keep = bl.Data
		p.NAlloc = want - cur
	}
	hasInd := bl.Indirect != common.NULLBNUM
	if needsIndirect(want) && !hasInd {
		p.AllocIndirect = true
	}
	if !needsIndirect(want) && hasInd {
		p.FreeIndirect = true
	}
	return p, nil
}

// Cost is the number of free blocks the plan consumes.
func (p ResizePlan) Cost() uint64 {
	n := p.NAlloc
	if p.AllocIndirect {
		n++
	}
	return n
}
