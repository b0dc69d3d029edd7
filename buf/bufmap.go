package buf

import (
	"sort"

	"github.com/mit-pdos/go-blockfs/addr"
)

// BufMap indexes an operation's bufs by address.
type BufMap struct {
	bufs map[addr.Addr]*Buf
}

func MkBufMap() *BufMap {
	return &BufMap{bufs: make(map[addr.Addr]*Buf)}
}

func (bm *BufMap) Insert(b *Buf) {
	bm.bufs[b.Addr] = b
}

// Lookup returns the buf at a, or nil.
func (bm *BufMap) Lookup(a addr.Addr) *Buf {
	return bm.bufs[a]
}

func (bm *BufMap) Del(a addr.Addr) {
	delete(bm.bufs, a)
}

func (bm *BufMap) Ndirty() uint64 {
	var n uint64
	for _, b := range bm.bufs {
		if b.dirty {
			n++
		}
	}
	return n
}

// DirtyBufs returns the dirty bufs in disk order.
func (bm *BufMap) DirtyBufs() []*Buf {
	var dirty []*Buf
	for _, b := range bm.bufs {
		if b.dirty {
			dirty = append(dirty, b)
		}
	}
	sort.Slice(dirty, func(i, j int) bool {
		return dirty[i].Addr.Flatid() < dirty[j].Addr.Flatid()
	})
	return dirty
}
