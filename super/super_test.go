package super

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
)

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	fs, err := MkFsSuper(2048, 512)
	require.NoError(t, err)

	assert.Equal(common.Bnum(1), fs.InodeBitmapStart)
	assert.Equal(uint64(1), fs.NInodeBitmap)
	assert.Equal(common.Bnum(2), fs.BlockBitmapStart)
	assert.Equal(uint64(1), fs.NBlockBitmap)
	assert.Equal(common.Bnum(3), fs.InodeStart)
	assert.Equal(uint64(128), fs.NInodeBlk)
	assert.Equal(common.Bnum(131), fs.DataStart)
	assert.Equal(uint64(2048-131), fs.NDataBlock())
	assert.True(fs.IsDataBlock(131))
	assert.False(fs.IsDataBlock(130))
	assert.False(fs.IsDataBlock(2048))
}

func TestInum2Addr(t *testing.T) {
	fs, err := MkFsSuper(2048, 512)
	require.NoError(t, err)
	assert.Equal(t, addr.MkAddr(3, 0), fs.Inum2Addr(0))
	assert.Equal(t, addr.MkAddr(3, common.INODESZ*8), fs.Inum2Addr(1))
	assert.Equal(t, addr.MkAddr(4, 0), fs.Inum2Addr(4))
	assert.Panics(t, func() { fs.Inum2Addr(512) })
}

func TestTooSmall(t *testing.T) {
	_, err := MkFsSuper(64, 512)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
	_, err = MkFsSuper(64, 1)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestEncodeDecode(t *testing.T) {
	fs, err := MkFsSuper(4096, 100)
	require.NoError(t, err)
	blk := fs.Encode()
	assert.Equal(t, int(disk.BlockSize), len(blk))

	fs2, err := Decode(blk)
	require.NoError(t, err)
	assert.Equal(t, fs, fs2)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode(make(disk.Block, disk.BlockSize))
	assert.Equal(t, ErrBadMagic, err)

	fs, err := MkFsSuper(4096, 100)
	require.NoError(t, err)
	fs.DataStart++
	_, err = Decode(fs.Encode())
	assert.Error(t, err)
}
