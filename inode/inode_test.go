package inode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/bcache"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/super"
	"github.com/mit-pdos/go-blockfs/txn"
)

func mkTable(t *testing.T, nblock, ninode uint64) (*Table, *bcache.Bcache) {
	sb, err := super.MkFsSuper(nblock, ninode)
	require.NoError(t, err)
	cache, err := bcache.MkBcache(disk.NewMemDisk(nblock))
	require.NoError(t, err)
	tbl := MkTable(sb)
	op := txn.Begin(cache)
	for bn := uint64(0); bn < sb.DataStart; bn++ {
		tbl.BlockAlloc().MarkUsed(op, bn)
	}
	tbl.InodeAlloc().MarkUsed(op, uint64(common.NULLINUM))
	op.Commit()
	return tbl, cache
}

func freeBlocks(tbl *Table, cache *bcache.Bcache) uint64 {
	return tbl.BlockAlloc().NumFree(txn.Begin(cache))
}

func TestPlanResize(t *testing.T) {
	assert := assert.New(t)

	p, err := PlanResize(BlockList{}, 13*disk.BlockSize)
	require.NoError(t, err)
	assert.Equal(uint64(13), p.NAlloc)
	assert.True(p.AllocIndirect)
	assert.Equal(uint64(14), p.Cost())

	bl := BlockList{Data: []common.Bnum{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22}, Indirect: 30}
	p, err = PlanResize(bl, 12*disk.BlockSize)
	require.NoError(t, err)
	assert.Equal([]common.Bnum{22}, p.Free)
	assert.Len(p.Keep, 12)
	assert.True(p.FreeIndirect)
	assert.Equal(uint64(0), p.Cost())

	p, err = PlanResize(bl, 13*disk.BlockSize-1)
	require.NoError(t, err)
	assert.Empty(p.Free)
	assert.False(p.FreeIndirect)
	assert.False(p.AllocIndirect)

	_, err = PlanResize(BlockList{}, common.MaxFileSize+1)
	assert.True(errors.Is(err, common.ErrFileTooLarge))
	_, err = PlanResize(BlockList{}, common.MaxFileSize)
	assert.NoError(err)
}

func TestAllocGetPut(t *testing.T) {
	tbl, cache := mkTable(t, 256, 16)
	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), ip.Inum)
	ip.Nlink = 3
	ip.Put(op)
	op.Commit()

	ip2 := tbl.Get(txn.Begin(cache), 1)
	assert.Equal(t, common.KindFile, ip2.Kind)
	assert.Equal(t, uint64(3), ip2.Nlink)
	assert.Equal(t, uint64(0), ip2.NumBlocks())
}

func TestResizeIndirect(t *testing.T) {
	assert := assert.New(t)
	tbl, cache := mkTable(t, 256, 16)
	free0 := freeBlocks(tbl, cache)

	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	require.NoError(t, ip.Resize(op, 13*disk.BlockSize))
	op.Commit()
	assert.Equal(uint64(14), ip.NumBlocks())
	assert.NotEqual(common.NULLBNUM, ip.Indirect)
	assert.Equal(free0-14, freeBlocks(tbl, cache))

	op = txn.Begin(cache)
	ip = tbl.Get(op, ip.Inum)
	require.NoError(t, ip.Resize(op, 12*disk.BlockSize))
	op.Commit()
	assert.Equal(uint64(12), ip.NumBlocks())
	assert.Equal(common.NULLBNUM, ip.Indirect)
	assert.Equal(free0-12, freeBlocks(tbl, cache))
}

func TestReadWriteAt(t *testing.T) {
	assert := assert.New(t)
	tbl, cache := mkTable(t, 256, 16)

	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	data := bytes.Repeat([]byte("0123456789"), 200)
	require.NoError(t, ip.WriteAt(op, 100, data))
	op.Commit()

	op = txn.Begin(cache)
	ip = tbl.Get(op, ip.Inum)
	assert.Equal(uint64(2100), ip.Size)
	assert.Equal(uint64(5), ip.NumBlocks())
	assert.Equal(make([]byte, 100), ip.ReadAt(op, 0, 100))
	assert.Equal(data, ip.ReadAt(op, 100, 5000))
	assert.Equal([]byte("89"), ip.ReadAt(op, 2098, 10))
	assert.Nil(ip.ReadAt(op, 2100, 10))
}

func TestShrinkZeroesTail(t *testing.T) {
	tbl, cache := mkTable(t, 256, 16)
	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	require.NoError(t, ip.WriteAt(op, 0, bytes.Repeat([]byte{'x'}, 300)))
	require.NoError(t, ip.Resize(op, 10))
	require.NoError(t, ip.Resize(op, 300))
	got := ip.ReadAt(op, 0, 300)
	assert.Equal(t, bytes.Repeat([]byte{'x'}, 10), got[:10])
	assert.Equal(t, make([]byte, 290), got[10:])
}

func TestWriteTooLarge(t *testing.T) {
	tbl, cache := mkTable(t, 256, 16)
	free0 := freeBlocks(tbl, cache)
	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	err = ip.WriteAt(op, common.MaxFileSize, []byte{1})
	assert.True(t, errors.Is(err, common.ErrFileTooLarge))
	assert.Equal(t, free0, tbl.BlockAlloc().NumFree(op))

	require.NoError(t, ip.WriteAt(op, common.MaxFileSize-1, []byte{1}))
	assert.Equal(t, common.MaxFileBlocks+1, ip.NumBlocks())
}

func TestWriteEmpty(t *testing.T) {
	tbl, cache := mkTable(t, 256, 16)
	free0 := freeBlocks(tbl, cache)
	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	require.NoError(t, ip.WriteAt(op, 5000, nil))
	require.NoError(t, ip.WriteAt(op, 1<<40, []byte{}))
	assert.Equal(t, uint64(0), ip.Size)
	assert.Equal(t, uint64(0), ip.NumBlocks())
	assert.Equal(t, free0, tbl.BlockAlloc().NumFree(op))
}

func TestOutOfSpace(t *testing.T) {
	tbl, cache := mkTable(t, 16, 4)
	sb := tbl.Super()
	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	op.Commit()

	op = txn.Begin(cache)
	ip = tbl.Get(op, ip.Inum)
	err = ip.Resize(op, (sb.NDataBlock()+1)*disk.BlockSize)
	assert.True(t, errors.Is(err, common.ErrOutOfSpace))
	// dropping op leaves the cache unchanged
	assert.Equal(t, sb.NDataBlock(), freeBlocks(tbl, cache))
	assert.Equal(t, uint64(0), tbl.Get(txn.Begin(cache), ip.Inum).Size)
}

func TestFree(t *testing.T) {
	tbl, cache := mkTable(t, 256, 16)
	free0 := freeBlocks(tbl, cache)
	op := txn.Begin(cache)
	ip, err := tbl.Alloc(op, common.KindFile)
	require.NoError(t, err)
	require.NoError(t, ip.Resize(op, 20*disk.BlockSize))
	ip.Free(op)
	op.Commit()

	op = txn.Begin(cache)
	assert.Equal(t, free0, tbl.BlockAlloc().NumFree(op))
	assert.False(t, tbl.InodeAlloc().IsUsed(op, uint64(ip.Inum)))
	assert.Equal(t, common.KindFree, tbl.Get(op, ip.Inum).Kind)
}

func TestOutOfInodes(t *testing.T) {
	tbl, cache := mkTable(t, 256, 8)
	op := txn.Begin(cache)
	var inums []common.Inum
	for i := 0; i < 7; i++ {
		ip, err := tbl.Alloc(op, common.KindFile)
		require.NoError(t, err)
		inums = append(inums, ip.Inum)
	}
	_, err := tbl.Alloc(op, common.KindFile)
	assert.Equal(t, common.ErrOutOfInodes, err)

	tbl.Get(op, inums[3]).Free(op)
	ip, err := tbl.Alloc(op, common.KindDir)
	require.NoError(t, err)
	assert.Equal(t, inums[3], ip.Inum)
	_, err = tbl.Alloc(op, common.KindFile)
	assert.Equal(t, common.ErrOutOfInodes, err)
}
