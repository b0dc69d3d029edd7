// Package dir implements directories on top of inode data.
//
// A directory is an inode whose data is a packed array of DIRENTSZ-byte
// entries in insertion order: entry i lives at offset i*DIRENTSZ and the
// directory's size is always a multiple of DIRENTSZ. Every directory starts
// with "." and "..".
package dir

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/txn"
	"github.com/mit-pdos/go-blockfs/util"
)

const (
	Dot    = "."
	DotDot = ".."
)

type DirEnt struct {
	Inum common.Inum
	Name string
}

// ValidName checks that name can be stored in an entry and is not one of
// the reserved names.
func ValidName(name string) error {
	if name == "" || uint64(len(name)) > common.MaxNameLen {
		return fmt.Errorf("%q: length must be 1..%d: %w", name, common.MaxNameLen, common.ErrInvalidName)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%q: %w", name, common.ErrInvalidName)
	}
	if name == Dot || name == DotDot {
		return fmt.Errorf("%q is reserved: %w", name, common.ErrInvalidName)
	}
	return nil
}

func encodeDirEnt(de DirEnt) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(uint64(de.Inum))
	b := enc.Finish()
	copy(b[8:], de.Name)
	return b
}

func decodeDirEnt(b []byte) DirEnt {
	dec := marshal.NewDec(b[:8])
	inum := common.Inum(dec.GetInt())
	name := b[8:common.DIRENTSZ]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return DirEnt{Inum: inum, Name: string(name)}
}

func checkDir(dip *inode.Inode) error {
	if !dip.IsDir() {
		return fmt.Errorf("inode %d: %w", dip.Inum, common.ErrNotDir)
	}
	return nil
}

// NumEnts is the number of entries in dip, "." and ".." included.
func NumEnts(dip *inode.Inode) uint64 {
	return dip.Size / common.DIRENTSZ
}

func readEnts(op *txn.Op, dip *inode.Inode) []DirEnt {
	data := dip.ReadAt(op, 0, dip.Size)
	ents := make([]DirEnt, 0, len(data)/int(common.DIRENTSZ))
	for off := uint64(0); off < uint64(len(data)); off += common.DIRENTSZ {
		ents = append(ents, decodeDirEnt(data[off:off+common.DIRENTSZ]))
	}
	return ents
}

func find(ents []DirEnt, name string) int {
	for i, de := range ents {
		if de.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the inum name refers to in dip.
func Lookup(op *txn.Op, dip *inode.Inode, name string) (common.Inum, error) {
	if err := checkDir(dip); err != nil {
		return common.NULLINUM, err
	}
	ents := readEnts(op, dip)
	if i := find(ents, name); i >= 0 {
		return ents[i].Inum, nil
	}
	return common.NULLINUM, fmt.Errorf("%q: %w", name, common.ErrNotFound)
}

func appendEnt(op *txn.Op, dip *inode.Inode, de DirEnt) error {
	if NumEnts(dip) >= common.MaxDirEnts {
		return fmt.Errorf("directory %d holds %d entries: %w", dip.Inum, common.MaxDirEnts, common.ErrFileTooLarge)
	}
	util.DPrintf(5, "dir %d: add %q -> %d\n", dip.Inum, de.Name, de.Inum)
	return dip.WriteAt(op, dip.Size, encodeDirEnt(de))
}

// Init writes the "." and ".." entries of a new, empty directory.
func Init(op *txn.Op, dip *inode.Inode, parent common.Inum) error {
	if err := checkDir(dip); err != nil {
		return err
	}
	if dip.Size != 0 {
		panic(fmt.Errorf("dir.Init: directory %d is not empty", dip.Inum))
	}
	if err := appendEnt(op, dip, DirEnt{Inum: dip.Inum, Name: Dot}); err != nil {
		return err
	}
	return appendEnt(op, dip, DirEnt{Inum: parent, Name: DotDot})
}

// Add appends an entry for name. The directory grows by one entry, which
// may allocate a data block and, past the direct range, the indirect block.
func Add(op *txn.Op, dip *inode.Inode, name string, inum common.Inum) error {
	if err := checkDir(dip); err != nil {
		return err
	}
	if err := ValidName(name); err != nil {
		return err
	}
	if find(readEnts(op, dip), name) >= 0 {
		return fmt.Errorf("%q: %w", name, common.ErrExists)
	}
	return appendEnt(op, dip, DirEnt{Inum: inum, Name: name})
}

// Remove deletes the entry for name and returns its inum. Later entries move
// down one slot, so order is preserved and the directory shrinks by exactly
// one entry, releasing blocks it no longer needs.
func Remove(op *txn.Op, dip *inode.Inode, name string) (common.Inum, error) {
	if err := checkDir(dip); err != nil {
		return common.NULLINUM, err
	}
	if name == Dot || name == DotDot {
		return common.NULLINUM, fmt.Errorf("%q is reserved: %w", name, common.ErrInvalidName)
	}
	ents := readEnts(op, dip)
	i := find(ents, name)
	if i < 0 {
		return common.NULLINUM, fmt.Errorf("%q: %w", name, common.ErrNotFound)
	}
	inum := ents[i].Inum
	off := uint64(i) * common.DIRENTSZ
	rest := dip.ReadAt(op, off+common.DIRENTSZ, dip.Size)
	if len(rest) > 0 {
		if err := dip.WriteAt(op, off, rest); err != nil {
			return common.NULLINUM, err
		}
	}
	if err := dip.Resize(op, dip.Size-common.DIRENTSZ); err != nil {
		return common.NULLINUM, err
	}
	util.DPrintf(5, "dir %d: remove %q (%d)\n", dip.Inum, name, inum)
	return inum, nil
}

// List returns the entries of dip in insertion order.
func List(op *txn.Op, dip *inode.Inode) ([]DirEnt, error) {
	if err := checkDir(dip); err != nil {
		return nil, err
	}
	return readEnts(op, dip), nil
}

// IsEmpty reports whether dip holds nothing but "." and "..".
func IsEmpty(op *txn.Op, dip *inode.Inode) bool {
	for _, de := range readEnts(op, dip) {
		if de.Name != Dot && de.Name != DotDot {
			return false
		}
	}
	return true
}
