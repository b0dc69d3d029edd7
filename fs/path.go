package fs

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/txn"
)

func splitPath(path string) []string {
	var comps []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps
}

func (s *Session) start(path string) common.Inum {
	if strings.HasPrefix(path, "/") {
		return common.ROOTINUM
	}
	return s.cwd
}

func (s *Session) walk(op *txn.Op, from common.Inum, comps []string) (*inode.Inode, error) {
	ip := s.fsys.tbl.Get(op, from)
	for _, c := range comps {
		if !ip.IsDir() {
			return nil, fmt.Errorf("%q: %w", c, common.ErrNotDir)
		}
		inum, err := dir.Lookup(op, ip, c)
		if err != nil {
			return nil, err
		}
		ip = s.fsys.tbl.Get(op, inum)
	}
	return ip, nil
}

// lookup resolves path. Absolute paths start at the root, others at the
// session's current directory; "." and ".." are ordinary entries. An empty
// path names the current directory.
func (s *Session) lookup(op *txn.Op, path string) (*inode.Inode, error) {
	return s.walk(op, s.start(path), splitPath(path))
}

// lookupParent resolves all but the last component of path, which must name
// a directory, and returns it with the last component.
func (s *Session) lookupParent(op *txn.Op, path string) (*inode.Inode, string, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return nil, "", fmt.Errorf("%q: %w", path, common.ErrInvalidName)
	}
	dip, err := s.walk(op, s.start(path), comps[:len(comps)-1])
	if err != nil {
		return nil, "", err
	}
	if !dip.IsDir() {
		return nil, "", fmt.Errorf("%q: %w", path, common.ErrNotDir)
	}
	return dip, comps[len(comps)-1], nil
}

// pathOf rebuilds an absolute path for directory inum by following ".."
// entries up to the root.
func (s *Session) pathOf(op *txn.Op, inum common.Inum) (string, error) {
	var names []string
	for inum != common.ROOTINUM {
		ip := s.fsys.tbl.Get(op, inum)
		parent, err := dir.Lookup(op, ip, dir.DotDot)
		if err != nil {
			return "", err
		}
		pip := s.fsys.tbl.Get(op, parent)
		ents, err := dir.List(op, pip)
		if err != nil {
			return "", err
		}
		found := false
		for _, de := range ents {
			if de.Inum == inum && de.Name != dir.Dot && de.Name != dir.DotDot {
				names = append(names, de.Name)
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("directory %d not in parent %d: %w", inum, parent, common.ErrNotFound)
		}
		inum = parent
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return "/" + strings.Join(names, "/"), nil
}
