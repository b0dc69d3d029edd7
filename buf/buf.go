// Package buf holds an operation's private copies of disk objects.
package buf

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// Buf is a copy of the Sz-bit object at Addr: an inode, a bitmap block, an
// indirect block or a data block. Writes go to Data and mark the Buf dirty;
// the block itself only changes when the Buf is installed.
type Buf struct {
	Addr  addr.Addr
	Sz    uint64 // in bits
	Data  []byte
	dirty bool
}

func nbytes(sz uint64) uint64 {
	if sz%8 != 0 {
		panic(fmt.Errorf("object of %d bits is not a whole number of bytes", sz))
	}
	return sz / 8
}

// MkBuf wraps data, which must be exactly sz bits long, as the object at a.
func MkBuf(a addr.Addr, sz uint64, data []byte) *Buf {
	if uint64(len(data)) != nbytes(sz) {
		panic(fmt.Errorf("MkBuf: %d bytes for %d bits", len(data), sz))
	}
	return &Buf{Addr: a, Sz: sz, Data: data}
}

// MkBufLoad copies the object at a out of blk, the block holding it.
func MkBufLoad(a addr.Addr, sz uint64, blk disk.Block) *Buf {
	off := a.ByteOff()
	data := util.CloneByteSlice(blk[off : off+nbytes(sz)])
	return &Buf{Addr: a, Sz: sz, Data: data}
}

// Install writes the object back into blk, leaving the rest of blk alone.
func (b *Buf) Install(blk disk.Block) {
	util.DPrintf(20, "%v: install %d bytes\n", b.Addr, len(b.Data))
	off := b.Addr.ByteOff()
	copy(blk[off:off+uint64(len(b.Data))], b.Data)
}

func (b *Buf) IsDirty() bool {
	return b.dirty
}

func (b *Buf) SetDirty() {
	b.dirty = true
}

// BnumGet decodes the block number stored at byte off.
func (b *Buf) BnumGet(off uint64) common.Bnum {
	dec := marshal.NewDec(b.Data[off : off+8])
	return dec.GetInt()
}

// BnumPut stores v at byte off and marks the Buf dirty.
func (b *Buf) BnumPut(off uint64, v common.Bnum) {
	enc := marshal.NewEnc(8)
	enc.PutInt(v)
	copy(b.Data[off:off+8], enc.Finish())
	b.SetDirty()
}
