package bcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
)

func block(b byte) disk.Block {
	blk := make(disk.Block, disk.BlockSize)
	blk[0] = b
	return blk
}

func TestReadWriteFlush(t *testing.T) {
	d := disk.NewMemDisk(8)
	require.NoError(t, d.Write(2, block(5)))

	c, err := MkBcache(d)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), c.Size())
	assert.Equal(t, block(5), c.Read(2))

	c.Write(2, block(6))
	c.MultiWrite(map[common.Bnum]disk.Block{4: block(7), 1: block(8)})
	assert.Equal(t, uint64(3), c.Ndirty())
	assert.Equal(t, block(6), c.Read(2))

	ondisk, _ := d.Read(2)
	assert.Equal(t, block(5), ondisk, "writes stay in memory until Flush")

	require.NoError(t, c.Flush())
	assert.Equal(t, uint64(0), c.Ndirty())
	ondisk, _ = d.Read(2)
	assert.Equal(t, block(6), ondisk)
	ondisk, _ = d.Read(4)
	assert.Equal(t, block(7), ondisk)
}

func TestReadReturnsCopy(t *testing.T) {
	c, err := MkBcache(disk.NewMemDisk(2))
	require.NoError(t, err)
	blk := c.Read(1)
	blk[0] = 9
	assert.Equal(t, byte(0), c.Read(1)[0])
}

func TestOutOfBounds(t *testing.T) {
	c, err := MkBcache(disk.NewMemDisk(2))
	require.NoError(t, err)
	assert.Panics(t, func() { c.Read(2) })
	assert.Panics(t, func() { c.Write(2, block(0)) })
}
