// Package fs is the file system engine: a FileSys owns an image and
// Sessions run commands against it.
//
// Each command runs as one txn.Op under the FileSys lock and commits only if
// it succeeds, so a failed command leaves no trace. Nothing reaches the disk
// until a session exits or the FileSys is closed.
package fs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mit-pdos/go-blockfs/bcache"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/super"
	"github.com/mit-pdos/go-blockfs/txn"
)

type FileSys struct {
	mu     sync.Mutex
	cache  *bcache.Bcache
	sb     *super.FsSuper
	tbl    *inode.Table
	ninode uint64

	// open handles per inode, over all sessions
	opens    map[common.Inum]uint64
	sessions map[uuid.UUID]*Session
}

func mkFileSys(d disk.Disk, ninode uint64) (*FileSys, error) {
	cache, err := bcache.MkBcache(d)
	if err != nil {
		return nil, err
	}
	return &FileSys{
		cache:    cache,
		ninode:   ninode,
		opens:    make(map[common.Inum]uint64),
		sessions: make(map[uuid.UUID]*Session),
	}, nil
}

// Format writes an empty file system with ninode inodes to d, replacing
// whatever was there, and flushes it.
func Format(d disk.Disk, ninode uint64) (*FileSys, error) {
	fsys, err := mkFileSys(d, ninode)
	if err != nil {
		return nil, err
	}
	if err := fsys.format(); err != nil {
		return nil, err
	}
	if err := fsys.cache.Flush(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// Mount loads the image on d. An image without a valid superblock magic is
// formatted with ninode inodes; otherwise the image's own geometry is used.
func Mount(d disk.Disk, ninode uint64) (*FileSys, error) {
	fsys, err := mkFileSys(d, ninode)
	if err != nil {
		return nil, err
	}
	err = fsys.load()
	if errors.Is(err, super.ErrBadMagic) {
		log.Infof("[FS] no file system on image, formatting %d blocks", fsys.cache.Size())
		if err := fsys.format(); err != nil {
			return nil, err
		}
		return fsys, nil
	}
	if err != nil {
		return nil, err
	}
	return fsys, nil
}

// MountExisting is Mount for images that must already hold a file system:
// a bad magic fails with super.ErrBadMagic and nothing is written.
func MountExisting(d disk.Disk) (*FileSys, error) {
	fsys, err := mkFileSys(d, 0)
	if err != nil {
		return nil, err
	}
	if err := fsys.load(); err != nil {
		return nil, err
	}
	return fsys, nil
}

func (fsys *FileSys) load() error {
	sb, err := super.Decode(fsys.cache.Read(super.SUPERBLOCK))
	if err != nil {
		return err
	}
	if sb.NBlock != fsys.cache.Size() {
		return fmt.Errorf("superblock says %d blocks, image has %d", sb.NBlock, fsys.cache.Size())
	}
	fsys.sb = sb
	fsys.ninode = sb.NInode
	fsys.tbl = inode.MkTable(sb)
	log.Debugf("[FS] mounted %+v", *sb)
	return nil
}

// format resets the image: every block zero, then a superblock, the
// reserved bitmap bits and a root directory. Two formats of the same
// geometry produce identical images.
func (fsys *FileSys) format() error {
	sb, err := super.MkFsSuper(fsys.cache.Size(), fsys.ninode)
	if err != nil {
		return err
	}
	for bn := uint64(0); bn < sb.NBlock; bn++ {
		fsys.cache.Write(bn, make(disk.Block, disk.BlockSize))
	}
	tbl := inode.MkTable(sb)

	op := txn.Begin(fsys.cache)
	op.OverWrite(sb.Block2addr(super.SUPERBLOCK), common.NBITBLOCK, sb.Encode())
	for bn := uint64(0); bn < sb.DataStart; bn++ {
		tbl.BlockAlloc().MarkUsed(op, bn)
	}
	tbl.InodeAlloc().MarkUsed(op, uint64(common.NULLINUM))
	root, err := tbl.Alloc(op, common.KindDir)
	if err != nil {
		return err
	}
	if root.Inum != common.ROOTINUM {
		panic(fmt.Errorf("format: root allocated as %d", root.Inum))
	}
	root.Nlink = 2
	root.Put(op)
	if err := dir.Init(op, root, root.Inum); err != nil {
		return err
	}
	op.Commit()

	fsys.sb = sb
	fsys.tbl = tbl
	fsys.opens = make(map[common.Inum]uint64)
	log.Debugf("[FS] formatted %+v", *sb)
	return nil
}

func (fsys *FileSys) Super() *super.FsSuper {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.sb
}

// Flush writes all committed changes to the disk.
func (fsys *FileSys) Flush() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.cache.Flush()
}

// Close flushes and closes the disk. Sessions must not be used afterwards.
func (fsys *FileSys) Close() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.cache.Close()
}

// NewSession starts a session in the root directory with no open files.
func (fsys *FileSys) NewSession() *Session {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	s := newSession(fsys)
	fsys.sessions[s.id] = s
	s.log.Debug("[FS] session started")
	return s
}

func (fsys *FileSys) NumSessions() int {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return len(fsys.sessions)
}

// release drops one open handle on inum and reclaims the inode if it was the
// last handle on an unlinked inode.
func (fsys *FileSys) release(op *txn.Op, inum common.Inum) {
	n := fsys.opens[inum]
	if n == 0 {
		panic(fmt.Errorf("release: inode %d is not open", inum))
	}
	if n > 1 {
		fsys.opens[inum] = n - 1
		return
	}
	delete(fsys.opens, inum)
	ip := fsys.tbl.Get(op, inum)
	if ip.Nlink == 0 && ip.Kind != common.KindFree {
		log.WithField("inum", inum).Debug("[FS] reclaim unlinked inode on last close")
		ip.Free(op)
	}
}

// Info summarizes space usage.
type Info struct {
	Blocks     uint64
	FreeBlocks uint64
	DataBlocks uint64
	Inodes     uint64
	FreeInodes uint64
}

// Df reports block and inode usage.
func (fsys *FileSys) Df() Info {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	op := txn.Begin(fsys.cache)
	return Info{
		Blocks:     fsys.sb.NBlock,
		FreeBlocks: fsys.tbl.BlockAlloc().NumFree(op),
		DataBlocks: fsys.sb.NDataBlock(),
		Inodes:     fsys.sb.NInode,
		FreeInodes: fsys.tbl.InodeAlloc().NumFree(op),
	}
}
