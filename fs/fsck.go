package fs

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/txn"
	"github.com/mit-pdos/go-blockfs/util"
)

type checker struct {
	fsys     *FileSys
	op       *txn.Op
	problems []string
	owner    map[common.Bnum]common.Inum
	refs     map[common.Inum]uint64
	visited  map[common.Inum]bool
}

func (c *checker) report(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	log.Warnf("[FSCK] %s", msg)
	c.problems = append(c.problems, msg)
}

func (c *checker) claim(inum common.Inum, bn common.Bnum) {
	if !c.fsys.sb.IsDataBlock(bn) {
		c.report("inode %d references non-data block %d", inum, bn)
		return
	}
	if other, ok := c.owner[bn]; ok {
		c.report("block %d used by inode %d and inode %d", bn, other, inum)
		return
	}
	c.owner[bn] = inum
}

// checkBlocks checks that exactly the logical blocks below the inode's size
// are mapped, and claims them.
func (c *checker) checkBlocks(ip *inode.Inode) {
	if ip.Size > common.MaxFileSize {
		c.report("inode %d: size %d too large", ip.Inum, ip.Size)
		return
	}
	n := util.RoundUp(ip.Size, disk.BlockSize)
	for i, bn := range ip.Direct {
		if uint64(i) < n {
			c.claim(ip.Inum, bn)
		} else if bn != common.NULLBNUM {
			c.report("inode %d: direct block %d set past end of file", ip.Inum, i)
		}
	}
	if n <= common.NDIRECT {
		if ip.Indirect != common.NULLBNUM {
			c.report("inode %d: indirect block %d allocated for %d blocks", ip.Inum, ip.Indirect, n)
		}
		return
	}
	if ip.Indirect == common.NULLBNUM {
		c.report("inode %d: %d blocks but no indirect block", ip.Inum, n)
		return
	}
	c.claim(ip.Inum, ip.Indirect)
	if !c.fsys.sb.IsDataBlock(ip.Indirect) {
		return
	}
	b := c.op.ReadBlock(ip.Indirect)
	for i := uint64(0); i < common.NINDIRECT; i++ {
		bn := b.BnumGet(i * 8)
		if common.NDIRECT+i < n {
			c.claim(ip.Inum, bn)
		} else if bn != common.NULLBNUM {
			c.report("inode %d: indirect entry %d set past end of file", ip.Inum, i)
		}
	}
}

func (c *checker) validInum(inum common.Inum) bool {
	return inum != common.NULLINUM && uint64(inum) < c.fsys.sb.NInode
}

// checkDir checks the "." and ".." entries of directory ip and returns its
// subdirectories.
func (c *checker) checkDir(ip *inode.Inode, parent common.Inum) []common.Inum {
	if ip.Size%common.DIRENTSZ != 0 {
		c.report("directory %d: size %d is not a whole number of entries", ip.Inum, ip.Size)
		return nil
	}
	ents, err := dir.List(c.op, ip)
	if err != nil {
		c.report("directory %d: %v", ip.Inum, err)
		return nil
	}
	if len(ents) < 2 || ents[0].Name != dir.Dot || ents[1].Name != dir.DotDot {
		c.report("directory %d: missing . or ..", ip.Inum)
		return nil
	}
	if ents[0].Inum != ip.Inum {
		c.report("directory %d: . is %d", ip.Inum, ents[0].Inum)
	}
	if ents[1].Inum != parent {
		c.report("directory %d: .. is %d, expected %d", ip.Inum, ents[1].Inum, parent)
	}
	var subdirs []common.Inum
	names := make(map[string]bool)
	for i, de := range ents {
		if names[de.Name] {
			c.report("directory %d: duplicate name %q", ip.Inum, de.Name)
		}
		names[de.Name] = true
		if !c.validInum(de.Inum) {
			c.report("directory %d: entry %q has bad inum %d", ip.Inum, de.Name, de.Inum)
			continue
		}
		c.refs[de.Inum]++
		if i < 2 {
			continue
		}
		child := c.fsys.tbl.Get(c.op, de.Inum)
		if child.IsDir() {
			subdirs = append(subdirs, de.Inum)
		}
	}
	return subdirs
}

func (c *checker) checkInode(inum common.Inum) *inode.Inode {
	ip := c.fsys.tbl.Get(c.op, inum)
	if ip.Kind == common.KindFree {
		c.report("inode %d is referenced but free", inum)
	}
	if !c.fsys.tbl.InodeAlloc().IsUsed(c.op, uint64(inum)) {
		c.report("inode %d is in use but not marked in the bitmap", inum)
	}
	c.checkBlocks(ip)
	return ip
}

func (c *checker) walk() {
	type item struct{ inum, parent common.Inum }
	queue := []item{{common.ROOTINUM, common.ROOTINUM}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if c.visited[it.inum] {
			c.report("directory %d is reachable twice", it.inum)
			continue
		}
		c.visited[it.inum] = true
		ip := c.checkInode(it.inum)
		if !ip.IsDir() {
			c.report("inode %d should be a directory", it.inum)
			continue
		}
		for _, sub := range c.checkDir(ip, it.parent) {
			queue = append(queue, item{sub, it.inum})
		}
		// files are visited through their directory entries
		ents, _ := dir.List(c.op, ip)
		for i, de := range ents {
			if i < 2 || !c.validInum(de.Inum) || c.visited[de.Inum] {
				continue
			}
			if c.fsys.tbl.Get(c.op, de.Inum).IsDir() {
				continue
			}
			c.visited[de.Inum] = true
			c.checkInode(de.Inum)
		}
	}
}

// Fsck checks the image: every reachable inode is allocated, every block
// referenced by an inode is marked used and referenced once, every used
// block or inode is referenced, sizes agree with mapped blocks, and link
// counts equal the number of entries naming each inode. It returns one
// message per problem found.
func (fsys *FileSys) Fsck() []string {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	c := &checker{
		fsys:    fsys,
		op:      txn.Begin(fsys.cache),
		owner:   make(map[common.Bnum]common.Inum),
		refs:    make(map[common.Inum]uint64),
		visited: make(map[common.Inum]bool),
	}
	c.walk()

	sb := fsys.sb
	for i := uint64(1); i < sb.NInode; i++ {
		inum := common.Inum(i)
		used := fsys.tbl.InodeAlloc().IsUsed(c.op, i)
		if c.visited[inum] {
			ip := fsys.tbl.Get(c.op, inum)
			if ip.Nlink != c.refs[inum] {
				c.report("inode %d: link count %d, %d entries", inum, ip.Nlink, c.refs[inum])
			}
			continue
		}
		if !used {
			continue
		}
		ip := fsys.tbl.Get(c.op, inum)
		if ip.Nlink == 0 && fsys.opens[inum] > 0 {
			// unlinked but still open
			c.checkBlocks(ip)
			continue
		}
		c.report("inode %d is allocated but unreachable", inum)
	}

	balloc := fsys.tbl.BlockAlloc()
	for bn := uint64(0); bn < sb.NBlock; bn++ {
		used := balloc.IsUsed(c.op, bn)
		_, owned := c.owner[bn]
		if bn < sb.DataStart {
			if !used {
				c.report("metadata block %d is not reserved", bn)
			}
			continue
		}
		if used && !owned {
			c.report("block %d is marked used but unreferenced", bn)
		}
		if owned && !used {
			c.report("block %d is referenced but marked free", bn)
		}
	}
	log.Debugf("[FSCK] %d problems", len(c.problems))
	return c.problems
}
