// Package addr names objects inside disk blocks.
package addr

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/common"
)

// Addr locates an object by the block holding it and its bit offset in that
// block. How many bits the object spans is up to the user of the Addr: the
// inode table uses INODESZ*8, bitmaps and data blocks use a whole block.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // in bits
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBitAddr locates bit n of a bitmap whose first block is start.
func MkBitAddr(start common.Bnum, n uint64) Addr {
	return Addr{
		Blkno: start + n/common.NBITBLOCK,
		Off:   n % common.NBITBLOCK,
	}
}

// Flatid orders addresses by their position on disk.
func (a Addr) Flatid() uint64 {
	return a.Blkno*common.NBITBLOCK + a.Off
}

// ByteOff is the object's offset in bytes. Only byte-aligned objects have
// one.
func (a Addr) ByteOff() uint64 {
	if a.Off%8 != 0 {
		panic(fmt.Errorf("addr %v is not byte-aligned", a))
	}
	return a.Off / 8
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Blkno, a.Off)
}
