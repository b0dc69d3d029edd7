// Package inode stores inodes in the inode table and maps file offsets to
// data blocks.
//
// An inode has NDIRECT direct block pointers and one indirect block holding
// NINDIRECT more. The indirect block exists exactly when the file maps more
// than NDIRECT blocks. Every logical block below ceil(Size/BlockSize) is
// mapped, and bytes past Size in the last block are zero, so growing a file
// always exposes zeros.
package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/alloc"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/super"
	"github.com/mit-pdos/go-blockfs/txn"
	"github.com/mit-pdos/go-blockfs/util"
)

// Table gives access to the inodes and allocators of one image.
type Table struct {
	sb     *super.FsSuper
	balloc *alloc.Alloc
	ialloc *alloc.Alloc
}

func MkTable(sb *super.FsSuper) *Table {
	return &Table{
		sb:     sb,
		balloc: alloc.MkAlloc(sb.BlockBitmapStart, sb.NBlockBitmap, sb.NBlock, common.ErrOutOfSpace),
		ialloc: alloc.MkAlloc(sb.InodeBitmapStart, sb.NInodeBitmap, sb.NInode, common.ErrOutOfInodes),
	}
}

func (t *Table) Super() *super.FsSuper {
	return t.sb
}

func (t *Table) BlockAlloc() *alloc.Alloc {
	return t.balloc
}

func (t *Table) InodeAlloc() *alloc.Alloc {
	return t.ialloc
}

type Inode struct {
	t *Table

	Inum     common.Inum
	Kind     common.Kind
	Nlink    uint64
	Size     uint64
	Direct   []common.Bnum
	Indirect common.Bnum
}

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d kind %v nlink %d size %d direct %v indirect %d",
		ip.Inum, ip.Kind, ip.Nlink, ip.Size, ip.Direct, ip.Indirect)
}

func (ip *Inode) IsDir() bool {
	return ip.Kind == common.KindDir
}

func (ip *Inode) encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Kind))
	enc.PutInt(ip.Nlink)
	enc.PutInt(ip.Size)
	enc.PutInts(ip.Direct)
	enc.PutInt(ip.Indirect)
	return enc.Finish()
}

func decode(t *Table, inum common.Inum, data []byte) *Inode {
	ip := &Inode{t: t, Inum: inum}
	dec := marshal.NewDec(data)
	ip.Kind = common.Kind(dec.GetInt())
	ip.Nlink = dec.GetInt()
	ip.Size = dec.GetInt()
	ip.Direct = dec.GetInts(common.NDIRECT)
	ip.Indirect = dec.GetInt()
	return ip
}

// Get reads inode inum within op.
func (t *Table) Get(op *txn.Op, inum common.Inum) *Inode {
	b := op.ReadBuf(t.sb.Inum2Addr(inum), common.INODESZ*8)
	ip := decode(t, inum, b.Data)
	util.DPrintf(10, "Get: %v\n", ip)
	return ip
}

// Put writes ip back to its slot in the inode table.
func (ip *Inode) Put(op *txn.Op) {
	util.DPrintf(10, "Put: %v\n", ip)
	b := op.ReadBuf(ip.t.sb.Inum2Addr(ip.Inum), common.INODESZ*8)
	copy(b.Data, ip.encode())
	b.SetDirty()
}

// Alloc allocates the lowest free inode and initializes it as an empty
// inode of the given kind with no links.
func (t *Table) Alloc(op *txn.Op, kind common.Kind) (*Inode, error) {
	n, err := t.ialloc.AllocNum(op)
	if err != nil {
		return nil, err
	}
	ip := &Inode{
		t:      t,
		Inum:   common.Inum(n),
		Kind:   kind,
		Direct: make([]common.Bnum, common.NDIRECT),
	}
	ip.Put(op)
	return ip, nil
}

// NumBlocks is the number of blocks the inode holds: its data blocks plus the
// indirect block if there is one.
func (ip *Inode) NumBlocks() uint64 {
	n := nblocks(ip.Size)
	if ip.Indirect != common.NULLBNUM {
		n++
	}
	return n
}

func (ip *Inode) indirectBnum(op *txn.Op, i uint64) common.Bnum {
	b := op.ReadBlock(ip.Indirect)
	return b.BnumGet(i * 8)
}

// Bmap returns the data block for logical block lbn, which must be mapped.
func (ip *Inode) Bmap(op *txn.Op, lbn uint64) common.Bnum {
	var bn common.Bnum
	if lbn < common.NDIRECT {
		bn = ip.Direct[lbn]
	} else if ip.Indirect != common.NULLBNUM && lbn < common.MaxFileBlocks {
		bn = ip.indirectBnum(op, lbn-common.NDIRECT)
	}
	if !ip.t.sb.IsDataBlock(bn) {
		panic(fmt.Errorf("Bmap: inode %d block %d maps to %d", ip.Inum, lbn, bn))
	}
	return bn
}

// Blocks returns the inode's current BlockList.
func (ip *Inode) Blocks(op *txn.Op) BlockList {
	n := nblocks(ip.Size)
	bl := BlockList{Data: make([]common.Bnum, 0, n), Indirect: ip.Indirect}
	for lbn := uint64(0); lbn < n; lbn++ {
		bl.Data = append(bl.Data, ip.Bmap(op, lbn))
	}
	return bl
}

// setBlocks records data as the inode's mapping. The indirect block, if
// any, must already be set.
func (ip *Inode) setBlocks(op *txn.Op, data []common.Bnum) {
	for i := uint64(0); i < common.NDIRECT; i++ {
		if i < uint64(len(data)) {
			ip.Direct[i] = data[i]
		} else {
			ip.Direct[i] = common.NULLBNUM
		}
	}
	if ip.Indirect == common.NULLBNUM {
		return
	}
	b := op.ReadBlock(ip.Indirect)
	for i := uint64(0); i < common.NINDIRECT; i++ {
		var bn = common.NULLBNUM
		if common.NDIRECT+i < uint64(len(data)) {
			bn = data[common.NDIRECT+i]
		}
		if b.BnumGet(i*8) != bn {
			b.BnumPut(i*8, bn)
		}
	}
}

// Resize grows or shrinks the inode to newSize bytes. New blocks are zeroed.
// On error nothing in op reflects a partial resize of ip, but blocks taken
// from the allocator are only given back by dropping op.
func (ip *Inode) Resize(op *txn.Op, newSize uint64) error {
	plan, err := PlanResize(ip.Blocks(op), newSize)
	if err != nil {
		return err
	}
	balloc := ip.t.balloc

	var indirect = ip.Indirect
	if plan.AllocIndirect {
		bn, err := balloc.AllocNum(op)
		if err != nil {
			return fmt.Errorf("indirect block for inode %d: %w", ip.Inum, err)
		}
		op.ZeroBlock(bn)
		indirect = bn
	}
	data := make([]common.Bnum, len(plan.Keep), uint64(len(plan.Keep))+plan.NAlloc)
	copy(data, plan.Keep)
	for i := uint64(0); i < plan.NAlloc; i++ {
		bn, err := balloc.AllocNum(op)
		if err != nil {
			return fmt.Errorf("data block for inode %d: %w", ip.Inum, err)
		}
		op.ZeroBlock(bn)
		data = append(data, bn)
	}

	for _, bn := range plan.Free {
		balloc.FreeNum(op, bn)
	}
	if plan.FreeIndirect {
		balloc.FreeNum(op, ip.Indirect)
		indirect = common.NULLBNUM
	}

	// keep the tail of a shrunk last block zero
	if newSize < ip.Size && newSize%disk.BlockSize != 0 {
		b := op.ReadBlock(data[len(data)-1])
		off := newSize % disk.BlockSize
		for i := off; i < disk.BlockSize; i++ {
			b.Data[i] = 0
		}
		b.SetDirty()
	}

	util.DPrintf(5, "Resize %d: %d -> %d, +%d -%d blocks\n", ip.Inum,
		ip.Size, newSize, plan.Cost(), len(plan.Free))
	ip.Indirect = indirect
	ip.Size = newSize
	ip.setBlocks(op, data)
	ip.Put(op)
	return nil
}

// ReadAt returns up to n bytes starting at off; fewer at end of file.
func (ip *Inode) ReadAt(op *txn.Op, off uint64, n uint64) []byte {
	if off >= ip.Size {
		return nil
	}
	n = util.Min(n, ip.Size-off)
	data := make([]byte, 0, n)
	for uint64(len(data)) < n {
		pos := off + uint64(len(data))
		boff := pos % disk.BlockSize
		nbytes := util.Min(disk.BlockSize-boff, n-uint64(len(data)))
		b := op.ReadBlock(ip.Bmap(op, pos/disk.BlockSize))
		data = append(data, b.Data[boff:boff+nbytes]...)
	}
	return data
}

// WriteAt writes data at off, growing the file as needed. A gap between the
// old end of file and off reads back as zeros. An empty write changes
// nothing, wherever off is.
func (ip *Inode) WriteAt(op *txn.Op, off uint64, data []byte) error {
	cnt := uint64(len(data))
	if cnt == 0 {
		return nil
	}
	if util.SumOverflows(off, cnt) || off+cnt > common.MaxFileSize {
		return fmt.Errorf("write of %d bytes at %d: %w", cnt, off, common.ErrFileTooLarge)
	}
	if off+cnt > ip.Size {
		if err := ip.Resize(op, off+cnt); err != nil {
			return err
		}
	}
	var done uint64
	for done < cnt {
		pos := off + done
		boff := pos % disk.BlockSize
		nbytes := util.Min(disk.BlockSize-boff, cnt-done)
		b := op.ReadBlock(ip.Bmap(op, pos/disk.BlockSize))
		copy(b.Data[boff:boff+nbytes], data[done:done+nbytes])
		b.SetDirty()
		done += nbytes
	}
	return nil
}

// Free releases all of the inode's blocks and the inode itself.
func (ip *Inode) Free(op *txn.Op) {
	util.DPrintf(1, "Free inode %d\n", ip.Inum)
	if err := ip.Resize(op, 0); err != nil {
		panic(err)
	}
	ip.Kind = common.KindFree
	ip.Nlink = 0
	ip.Put(op)
	ip.t.ialloc.FreeNum(op, uint64(ip.Inum))
}
