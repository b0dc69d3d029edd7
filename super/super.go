// Package super describes the on-disk layout of a file system image.
//
// Block 0 holds the superblock. It is followed by the inode bitmap, the
// block bitmap, the inode table and finally the data blocks. The block bitmap
// has one bit per block of the image, so the metadata blocks are simply
// reserved bits.
package super

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// Magic identifies a formatted image ("blkfs001").
const Magic uint64 = 0x626c6b6673303031

const SUPERBLOCK common.Bnum = 0

var ErrBadMagic = errors.New("bad superblock magic")

type FsSuper struct {
	NBlock           uint64
	NInode           uint64
	InodeBitmapStart common.Bnum
	NInodeBitmap     uint64
	BlockBitmapStart common.Bnum
	NBlockBitmap     uint64
	InodeStart       common.Bnum
	NInodeBlk        uint64
	DataStart        common.Bnum
	RootInum         common.Inum
}

// MkFsSuper lays out an image of nblock blocks with ninode inodes (inum 0
// included).
func MkFsSuper(nblock uint64, ninode uint64) (*FsSuper, error) {
	if ninode < 2 {
		return nil, fmt.Errorf("need at least 2 inodes, got %d: %w", ninode, common.ErrInvalidArgument)
	}
	ninodebitmap := util.RoundUp(ninode, common.NBITBLOCK)
	nblockbitmap := util.RoundUp(nblock, common.NBITBLOCK)
	ninodeblk := util.RoundUp(ninode, common.INODEBLK)
	fs := &FsSuper{
		NBlock:           nblock,
		NInode:           ninode,
		InodeBitmapStart: SUPERBLOCK + 1,
		NInodeBitmap:     ninodebitmap,
		BlockBitmapStart: SUPERBLOCK + 1 + ninodebitmap,
		NBlockBitmap:     nblockbitmap,
		InodeStart:       SUPERBLOCK + 1 + ninodebitmap + nblockbitmap,
		NInodeBlk:        ninodeblk,
		RootInum:         common.ROOTINUM,
	}
	fs.DataStart = fs.InodeStart + ninodeblk
	// the root directory needs one data block
	if fs.DataStart >= nblock {
		return nil, fmt.Errorf("%d blocks cannot hold %d inodes: %w", nblock, ninode, common.ErrInvalidArgument)
	}
	return fs, nil
}

// NDataBlock is the number of blocks available for file data.
func (fs *FsSuper) NDataBlock() uint64 {
	return fs.NBlock - fs.DataStart
}

func (fs *FsSuper) MaxBnum() common.Bnum {
	return common.Bnum(fs.NBlock)
}

func (fs *FsSuper) Block2addr(blkno common.Bnum) addr.Addr {
	return addr.MkAddr(blkno, 0)
}

func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	if uint64(inum) >= fs.NInode {
		panic(fmt.Errorf("Inum2Addr: inum %d out of range", inum))
	}
	return addr.MkAddr(fs.InodeStart+common.Bnum(uint64(inum)/common.INODEBLK),
		(uint64(inum)%common.INODEBLK)*common.INODESZ*8)
}

// IsDataBlock reports whether bn may be referenced by an inode.
func (fs *FsSuper) IsDataBlock(bn common.Bnum) bool {
	return bn >= fs.DataStart && bn < fs.NBlock
}

func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(Magic)
	enc.PutInt(fs.NBlock)
	enc.PutInt(fs.NInode)
	enc.PutInt(fs.InodeBitmapStart)
	enc.PutInt(fs.NInodeBitmap)
	enc.PutInt(fs.BlockBitmapStart)
	enc.PutInt(fs.NBlockBitmap)
	enc.PutInt(fs.InodeStart)
	enc.PutInt(fs.NInodeBlk)
	enc.PutInt(fs.DataStart)
	enc.PutInt(uint64(fs.RootInum))
	return enc.Finish()
}

// Decode reads a superblock and checks that its layout is the one MkFsSuper
// would produce for the recorded geometry.
func Decode(blk disk.Block) (*FsSuper, error) {
	dec := marshal.NewDec(blk)
	if dec.GetInt() != Magic {
		return nil, ErrBadMagic
	}
	fs := &FsSuper{}
	fs.NBlock = dec.GetInt()
	fs.NInode = dec.GetInt()
	fs.InodeBitmapStart = dec.GetInt()
	fs.NInodeBitmap = dec.GetInt()
	fs.BlockBitmapStart = dec.GetInt()
	fs.NBlockBitmap = dec.GetInt()
	fs.InodeStart = dec.GetInt()
	fs.NInodeBlk = dec.GetInt()
	fs.DataStart = dec.GetInt()
	fs.RootInum = common.Inum(dec.GetInt())

	want, err := MkFsSuper(fs.NBlock, fs.NInode)
	if err != nil {
		return nil, fmt.Errorf("corrupt superblock: %w", err)
	}
	if *want != *fs {
		return nil, fmt.Errorf("corrupt superblock: layout %+v, expected %+v", *fs, *want)
	}
	return fs, nil
}
