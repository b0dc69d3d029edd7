// Package handle is a session's table of open files.
package handle

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/common"
)

// MaxOpen is the number of handles a table can hold at once.
const MaxOpen = 256

// Mode is the access mode a handle was opened with.
type Mode uint64

const (
	ModeRead      Mode = 1
	ModeWrite     Mode = 2
	ModeReadWrite Mode = ModeRead | ModeWrite

	// ModeCreate asks open to create a missing regular file.
	ModeCreate Mode = 4
)

func (m Mode) Valid() bool {
	return m&ModeReadWrite != 0 && m&^(ModeReadWrite|ModeCreate) == 0
}

func (m Mode) CanRead() bool {
	return m&ModeRead != 0
}

func (m Mode) CanWrite() bool {
	return m&ModeWrite != 0
}

func (m Mode) String() string {
	s := ""
	if m.CanRead() {
		s += "r"
	}
	if m.CanWrite() {
		s += "w"
	}
	if m&ModeCreate != 0 {
		s += "c"
	}
	return s
}

type Fd uint64

// Handle is an open file: an inode, an access mode and a byte offset.
type Handle struct {
	Inum   common.Inum
	Mode   Mode
	Offset uint64
}

// Table has MaxOpen slots; open uses the lowest free one.
type Table struct {
	slots [MaxOpen]*Handle
	n     int
}

func NewTable() *Table {
	return &Table{}
}

// Free reports whether a slot is available.
func (t *Table) Free() bool {
	return t.n < MaxOpen
}

func (t *Table) Len() int {
	return t.n
}

// Allocate binds the lowest free slot to inum with offset 0.
func (t *Table) Allocate(inum common.Inum, mode Mode) (Fd, error) {
	for i, h := range t.slots {
		if h == nil {
			t.slots[i] = &Handle{Inum: inum, Mode: mode &^ ModeCreate}
			t.n++
			return Fd(i), nil
		}
	}
	return 0, fmt.Errorf("%d handles open: %w", MaxOpen, common.ErrHandleTableFull)
}

// Get returns the handle bound to fd.
func (t *Table) Get(fd Fd) (*Handle, error) {
	if fd >= MaxOpen || t.slots[fd] == nil {
		return nil, fmt.Errorf("fd %d: %w", fd, common.ErrInvalidHandle)
	}
	return t.slots[fd], nil
}

// Release frees fd and returns the handle it held.
func (t *Table) Release(fd Fd) (*Handle, error) {
	h, err := t.Get(fd)
	if err != nil {
		return nil, err
	}
	t.slots[fd] = nil
	t.n--
	return h, nil
}

// Clear releases every handle and returns them.
func (t *Table) Clear() []*Handle {
	var hs []*Handle
	for i, h := range t.slots {
		if h != nil {
			hs = append(hs, h)
			t.slots[i] = nil
		}
	}
	t.n = 0
	return hs
}
