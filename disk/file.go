package disk

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-blockfs/util"
)

var _ Disk = (*FileDisk)(nil)

// FileDisk is a disk image backed by one host file of exactly
// numBlocks*BlockSize bytes. The image is locked for the lifetime of the
// FileDisk so two processes never share it.
type FileDisk struct {
	fd        int
	numBlocks uint64
	lock      *flock.Flock
}

// NewFileDisk opens (creating if needed) the image at path. If numBlocks is
// zero the size of an existing image is kept; otherwise the file is resized
// to numBlocks blocks.
func NewFileDisk(ctx context.Context, path string, numBlocks uint64) (*FileDisk, error) {
	lk := flock.New(path)
	err := util.Retry(ctx, func() error {
		locked, err := lk.TryLock()
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if !locked {
			return ErrImageLocked
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		lk.Unlock()
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		lk.Unlock()
		return nil, err
	}
	if numBlocks == 0 {
		numBlocks = uint64(stat.Size) / BlockSize
		if numBlocks == 0 {
			unix.Close(fd)
			lk.Unlock()
			return nil, fmt.Errorf("%s: empty image and no size given", path)
		}
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numBlocks*BlockSize {
		log.WithFields(log.Fields{
			"path": path,
			"from": stat.Size,
			"to":   numBlocks * BlockSize,
		}).Debug("resizing disk image")
		err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
		if err != nil {
			unix.Close(fd)
			lk.Unlock()
			return nil, err
		}
	}
	return &FileDisk{fd: fd, numBlocks: numBlocks, lock: lk}, nil
}

func (d *FileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != BlockSize {
		panic("buffer is not block-sized")
	}
	if a >= d.numBlocks {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	n, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("read block %d: %w", a, err)
	}
	// a short read past the end of a sparse file reads as zeros
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (d *FileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *FileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block sized (%d bytes)", len(v)))
	}
	if a >= d.numBlocks {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("write block %d: %w", a, err)
	}
	return nil
}

func (d *FileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *FileDisk) Barrier() error {
	// fsync on macOS skips the drive cache; F_FULLFSYNC would be needed there
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("file sync failed: %w", err)
	}
	return nil
}

func (d *FileDisk) Close() error {
	err := unix.Close(d.fd)
	if uerr := d.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
