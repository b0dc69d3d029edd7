// Package disk provides the block devices an image lives on: a host file
// and, for tests, memory.
package disk

import "errors"

// BlockSize is the unit of every read and write.
const BlockSize uint64 = 512

// Block holds the BlockSize bytes of one block.
type Block = []byte

// ErrImageLocked is returned when another process holds the image.
var ErrImageLocked = errors.New("disk image is locked by another process")

// Disk is a fixed array of Size() blocks. Touching a block at or past Size()
// is a caller bug and panics.
type Disk interface {
	Read(a uint64) (Block, error)

	// ReadTo fills b with block a.
	ReadTo(a uint64, b Block) error

	Write(a uint64, v Block) error

	// Size is the number of blocks; it never changes.
	Size() (uint64, error)

	// Barrier returns once every earlier Write is durable.
	Barrier() error

	// Close releases the disk (and its lock, if any).
	Close() error
}
