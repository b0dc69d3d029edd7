package dir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/bcache"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/super"
	"github.com/mit-pdos/go-blockfs/txn"
)

func mkDir(t *testing.T, nblock uint64) (*txn.Op, *inode.Inode) {
	sb, err := super.MkFsSuper(nblock, 16)
	require.NoError(t, err)
	cache, err := bcache.MkBcache(disk.NewMemDisk(nblock))
	require.NoError(t, err)
	tbl := inode.MkTable(sb)
	op := txn.Begin(cache)
	for bn := uint64(0); bn < sb.DataStart; bn++ {
		tbl.BlockAlloc().MarkUsed(op, bn)
	}
	tbl.InodeAlloc().MarkUsed(op, uint64(common.NULLINUM))
	dip, err := tbl.Alloc(op, common.KindDir)
	require.NoError(t, err)
	require.NoError(t, Init(op, dip, dip.Inum))
	return op, dip
}

func names(t *testing.T, op *txn.Op, dip *inode.Inode) []string {
	ents, err := List(op, dip)
	require.NoError(t, err)
	var ns []string
	for _, de := range ents {
		ns = append(ns, de.Name)
	}
	return ns
}

func TestValidName(t *testing.T) {
	assert.NoError(t, ValidName("a"))
	assert.NoError(t, ValidName("x.txt"))
	for _, bad := range []string{"", ".", "..", "a/b", "a\x00b",
		"0123456789012345678901234567890123456789012345678901234567"} {
		assert.True(t, errors.Is(ValidName(bad), common.ErrInvalidName), bad)
	}
}

func TestEncodeDirEnt(t *testing.T) {
	de := DirEnt{Inum: 42, Name: "hello"}
	b := encodeDirEnt(de)
	assert.Equal(t, int(common.DIRENTSZ), len(b))
	assert.Equal(t, de, decodeDirEnt(b))
}

func TestAddLookupRemove(t *testing.T) {
	op, dip := mkDir(t, 256)
	assert.Equal(t, []string{".", ".."}, names(t, op, dip))
	assert.True(t, IsEmpty(op, dip))

	require.NoError(t, Add(op, dip, "a", 5))
	require.NoError(t, Add(op, dip, "b", 6))
	require.NoError(t, Add(op, dip, "c", 7))
	assert.True(t, errors.Is(Add(op, dip, "b", 8), common.ErrExists))
	assert.False(t, IsEmpty(op, dip))

	inum, err := Lookup(op, dip, "b")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(6), inum)
	inum, err = Lookup(op, dip, ".")
	require.NoError(t, err)
	assert.Equal(t, dip.Inum, inum)
	_, err = Lookup(op, dip, "zz")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	inum, err = Remove(op, dip, "b")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(6), inum)
	assert.Equal(t, []string{".", "..", "a", "c"}, names(t, op, dip))
	assert.Equal(t, 4*common.DIRENTSZ, dip.Size)

	_, err = Remove(op, dip, "b")
	assert.True(t, errors.Is(err, common.ErrNotFound))
	_, err = Remove(op, dip, "..")
	assert.True(t, errors.Is(err, common.ErrInvalidName))
}

func TestNotDir(t *testing.T) {
	op, dip := mkDir(t, 256)
	dip.Kind = common.KindFile
	_, err := Lookup(op, dip, "a")
	assert.True(t, errors.Is(err, common.ErrNotDir))
	assert.True(t, errors.Is(Add(op, dip, "a", 2), common.ErrNotDir))
}

func TestIndirectTransition(t *testing.T) {
	op, dip := mkDir(t, 512)
	direct := common.NDIRECT * common.DIRENTBLK
	for i := uint64(2); i < direct; i++ {
		require.NoError(t, Add(op, dip, fmt.Sprintf("f%d", i), 2))
	}
	assert.Equal(t, common.NDIRECT, dip.NumBlocks())
	assert.Equal(t, common.NULLBNUM, dip.Indirect)

	require.NoError(t, Add(op, dip, "over", 2))
	assert.Equal(t, common.NDIRECT+2, dip.NumBlocks())

	_, err := Remove(op, dip, "f2")
	require.NoError(t, err)
	assert.Equal(t, common.NDIRECT, dip.NumBlocks())
	assert.Equal(t, common.NULLBNUM, dip.Indirect)
	ns := names(t, op, dip)
	assert.Equal(t, "over", ns[len(ns)-1])
}

func TestFull(t *testing.T) {
	op, dip := mkDir(t, 1024)
	for i := uint64(2); i < common.MaxDirEnts; i++ {
		require.NoError(t, Add(op, dip, fmt.Sprintf("f%d", i), 2))
	}
	assert.True(t, errors.Is(Add(op, dip, "one-more", 2), common.ErrFileTooLarge))
	assert.Equal(t, common.MaxDirEnts, NumEnts(dip))
}
