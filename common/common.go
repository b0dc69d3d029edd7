package common

import (
	"github.com/mit-pdos/go-blockfs/disk"
)

const (
	NBITBLOCK uint64 = disk.BlockSize * 8
	INODEBLK  uint64 = disk.BlockSize / INODESZ

	INODESZ uint64 = 128 // on-disk size

	NDIRECT   uint64 = 12
	NINDIRECT uint64 = disk.BlockSize / 8 // block numbers per indirect block

	MaxFileBlocks uint64 = NDIRECT + NINDIRECT
	MaxFileSize   uint64 = MaxFileBlocks * disk.BlockSize

	// A directory entry is an inum followed by a NUL-padded name.
	DIRENTSZ   uint64 = 64
	MaxNameLen uint64 = DIRENTSZ - 8
	DIRENTBLK  uint64 = disk.BlockSize / DIRENTSZ
	MaxDirEnts uint64 = MaxFileSize / DIRENTSZ
)

type Inum uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0
)

type Kind uint64

const (
	KindFree Kind = 0
	KindDir  Kind = 1
	KindFile Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "DIRECTORY"
	case KindFile:
		return "FILE"
	default:
		return "FREE"
	}
}
