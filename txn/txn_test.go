package txn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/bcache"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/txn"
)

func data(sz int) []byte {
	d := make([]byte, sz)
	rand.Read(d)
	return d
}

func blockAddr(a uint64) addr.Addr {
	return addr.Addr{
		Blkno: a,
		Off:   0,
	}
}

const blockSz uint64 = 8 * disk.BlockSize

func mkCache(t *testing.T) *bcache.Bcache {
	c, err := bcache.MkBcache(disk.NewMemDisk(100))
	require.NoError(t, err)
	return c
}

func TestReadWrite(t *testing.T) {
	c := mkCache(t)
	x := data(int(disk.BlockSize))

	tx := txn.Begin(c)
	tx.OverWrite(blockAddr(10), blockSz, x)
	tx.Commit()

	tx = txn.Begin(c)
	buf := tx.ReadBuf(blockAddr(10), blockSz)
	assert.Equal(t, x, buf.Data, "read incorrect data")
	assert.Equal(t, x, c.Read(10))
}

func TestAbortHasNoEffect(t *testing.T) {
	c := mkCache(t)
	tx := txn.Begin(c)
	tx.OverWrite(blockAddr(10), blockSz, data(int(disk.BlockSize)))
	b := tx.ReadBlock(11)
	b.BnumPut(0, 77)
	assert.Equal(t, uint64(2), tx.NDirty())
	// dropped without Commit

	assert.Equal(t, make([]byte, disk.BlockSize), c.Read(10))
	assert.Equal(t, make([]byte, disk.BlockSize), c.Read(11))
	assert.Equal(t, uint64(0), c.Ndirty())
}

func TestWritesPrivateUntilCommit(t *testing.T) {
	c := mkCache(t)
	tx := txn.Begin(c)
	b := tx.ReadBlock(12)
	b.BnumPut(8, 42)
	assert.Equal(t, common.Bnum(42), tx.ReadBlock(12).BnumGet(8), "op sees its own writes")

	other := txn.Begin(c)
	assert.Equal(t, common.Bnum(0), other.ReadBlock(12).BnumGet(8))

	tx.Commit()
	assert.Equal(t, common.Bnum(42), txn.Begin(c).ReadBlock(12).BnumGet(8))
}

func TestSubBlockObjects(t *testing.T) {
	c := mkCache(t)
	tx := txn.Begin(c)
	sz := common.INODESZ * 8
	a0 := addr.MkAddr(20, 0)
	a1 := addr.MkAddr(20, sz)
	tx.ReadBuf(a0, sz).BnumPut(0, 1)
	tx.ReadBuf(a1, sz).BnumPut(0, 2)
	tx.Commit()

	blk := c.Read(20)
	assert.Equal(t, byte(1), blk[0])
	assert.Equal(t, byte(2), blk[common.INODESZ])

	tx2 := txn.Begin(c)
	tx2.ReadBuf(a0, sz)
	assert.Panics(t, func() { tx2.ReadBuf(a0, 8) }, "object size is fixed per address")
}

func TestZeroBlock(t *testing.T) {
	c := mkCache(t)
	tx := txn.Begin(c)
	tx.OverWrite(blockAddr(3), blockSz, data(int(disk.BlockSize)))
	tx.Commit()

	tx = txn.Begin(c)
	tx.ZeroBlock(3)
	tx.Commit()
	assert.Equal(t, make([]byte, disk.BlockSize), c.Read(3))
}
