package alloc

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/buf"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/txn"
	"github.com/mit-pdos/go-blockfs/util"
)

// Alloc uses a bit map to allocate and free numbers. Bit 0 corresponds to
// number 0, bit 1 to 1, and so on; reserved numbers are marked used when the
// file system is formatted. Allocation is first-fit: AllocNum always returns
// the lowest free number.
type Alloc struct {
	start common.Bnum // first bitmap block
	len   uint64      // number of bitmap blocks
	max   uint64      // numbers are in [0, max)
	full  error       // returned by AllocNum when nothing is free
}

func MkAlloc(start common.Bnum, len uint64, max uint64, full error) *Alloc {
	if max > len*common.NBITBLOCK {
		panic("MkAlloc: bitmap too small")
	}
	a := &Alloc{
		start: start,
		len:   len,
		max:   max,
		full:  full,
	}
	return a
}

// Max reports the size of the number space.
func (a *Alloc) Max() uint64 {
	return a.max
}

// Lock the block holding the n-th bit in the bitmap and return the bit
// offset within it
func (a *Alloc) lockBit(op *txn.Op, n uint64) (*buf.Buf, uint64) {
	if n >= a.max {
		panic(fmt.Errorf("alloc: number %d out of range", n))
	}
	bitaddr := addr.MkBitAddr(a.start, n)
	b := op.ReadBlock(bitaddr.Blkno)
	util.DPrintf(15, "lockBit: %v\n", bitaddr)
	return b, bitaddr.Off
}

func isSet(b *buf.Buf, bit uint64) bool {
	return b.Data[bit/8]&(1<<(bit%8)) != 0
}

func setBit(b *buf.Buf, bit uint64) {
	b.Data[bit/8] = b.Data[bit/8] | (1 << (bit % 8))
	b.SetDirty()
}

// Free bit in buf
func freeBit(b *buf.Buf, bit uint64) {
	b.Data[bit/8] = b.Data[bit/8] & ^(1 << (bit % 8))
	b.SetDirty()
}

// findFreeBit scans the bitmap from the start and returns the lowest clear
// number.
func (a *Alloc) findFreeBit(op *txn.Op) (uint64, bool) {
	for i := uint64(0); i < a.len; i++ {
		b := op.ReadBlock(a.start + i)
		for j, by := range b.Data {
			if by == 0xFF {
				continue
			}
			for bit := uint64(0); bit < 8; bit++ {
				if by&(1<<bit) != 0 {
					continue
				}
				num := i*common.NBITBLOCK + uint64(j)*8 + bit
				if num >= a.max {
					return 0, false
				}
				return num, true
			}
		}
	}
	return 0, false
}

func (a *Alloc) AllocNum(op *txn.Op) (uint64, error) {
	num, ok := a.findFreeBit(op)
	if !ok {
		return 0, a.full
	}
	b, bit := a.lockBit(op, num)
	setBit(b, bit)
	util.DPrintf(10, "AllocNum: %d\n", num)
	return num, nil
}

// FreeNum releases num. Freeing a number that is not allocated is a caller
// bug.
func (a *Alloc) FreeNum(op *txn.Op, num uint64) {
	if num == 0 {
		panic("FreeNum")
	}
	b, bit := a.lockBit(op, num)
	if !isSet(b, bit) {
		panic(fmt.Errorf("FreeNum: %d is already free", num))
	}
	freeBit(b, bit)
}

// MarkUsed sets the bit for num regardless of its current state.
func (a *Alloc) MarkUsed(op *txn.Op, num uint64) {
	b, bit := a.lockBit(op, num)
	setBit(b, bit)
}

func (a *Alloc) IsUsed(op *txn.Op, num uint64) bool {
	b, bit := a.lockBit(op, num)
	return isSet(b, bit)
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts the clear bits below max.
func (a *Alloc) NumFree(op *txn.Op) uint64 {
	var used uint64
	for i := uint64(0); i < a.len; i++ {
		b := op.ReadBlock(a.start + i)
		for j, by := range b.Data {
			base := i*common.NBITBLOCK + uint64(j)*8
			if base >= a.max {
				break
			}
			if base+8 <= a.max {
				used += popCnt(by)
				continue
			}
			for bit := uint64(0); base+bit < a.max; bit++ {
				if by&(1<<bit) != 0 {
					used++
				}
			}
		}
	}
	return a.max - used
}
