package fs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/handle"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/txn"
)

var ErrSessionClosed = errors.New("session closed")

// Session is one client of a FileSys: a current directory and a table of
// open handles.
type Session struct {
	fsys    *FileSys
	id      uuid.UUID
	cwd     common.Inum
	handles *handle.Table
	closed  bool
	log     *log.Entry
}

func newSession(fsys *FileSys) *Session {
	id := uuid.New()
	return &Session{
		fsys:    fsys,
		id:      id,
		cwd:     common.ROOTINUM,
		handles: handle.NewTable(),
		log:     log.WithField("session", id.String()),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// lock takes the FileSys lock and starts an op for one command.
func (s *Session) lock() (*txn.Op, error) {
	s.fsys.mu.Lock()
	if s.closed {
		s.fsys.mu.Unlock()
		return nil, ErrSessionClosed
	}
	return txn.Begin(s.fsys.cache), nil
}

func (s *Session) unlock() {
	s.fsys.mu.Unlock()
}

// Mkfs formats the image. Every session loses its open handles and returns
// to the root directory.
func (s *Session) Mkfs() error {
	_, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	for _, other := range s.fsys.sessions {
		other.handles.Clear()
		other.cwd = common.ROOTINUM
	}
	if err := s.fsys.format(); err != nil {
		return err
	}
	s.log.Info("[FS] mkfs")
	return s.fsys.cache.Flush()
}

// createFile allocates a regular file with one link and adds it to dip.
func (s *Session) createFile(op *txn.Op, dip *inode.Inode, name string) (*inode.Inode, error) {
	if err := dir.ValidName(name); err != nil {
		return nil, err
	}
	if _, err := dir.Lookup(op, dip, name); err == nil {
		return nil, fmt.Errorf("%q: %w", name, common.ErrExists)
	}
	ip, err := s.fsys.tbl.Alloc(op, common.KindFile)
	if err != nil {
		return nil, err
	}
	ip.Nlink = 1
	ip.Put(op)
	if err := dir.Add(op, dip, name, ip.Inum); err != nil {
		return nil, err
	}
	return ip, nil
}

// Open binds the lowest free handle to the file at path. With ModeCreate a
// missing regular file is created first. Directories may only be opened for
// reading.
func (s *Session) Open(path string, mode handle.Mode) (handle.Fd, error) {
	if !mode.Valid() {
		return 0, fmt.Errorf("mode %d: %w", mode, common.ErrInvalidArgument)
	}
	op, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer s.unlock()
	ip, err := s.lookup(op, path)
	if errors.Is(err, common.ErrNotFound) && mode&handle.ModeCreate != 0 {
		if !s.handles.Free() {
			return 0, fmt.Errorf("open %q: %d handles open: %w", path, handle.MaxOpen, common.ErrHandleTableFull)
		}
		var dip *inode.Inode
		var name string
		dip, name, err = s.lookupParent(op, path)
		if err == nil {
			ip, err = s.createFile(op, dip, name)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("open %q: %w", path, err)
	}
	if ip.IsDir() && mode.CanWrite() {
		return 0, fmt.Errorf("open %q for writing: %w", path, common.ErrIsDir)
	}
	fd, err := s.handles.Allocate(ip.Inum, mode)
	if err != nil {
		return 0, err
	}
	op.Commit()
	s.fsys.opens[ip.Inum]++
	s.log.WithFields(log.Fields{"fd": fd, "inum": ip.Inum}).Debugf("[FS] open %q mode=%v", path, mode)
	return fd, nil
}

// Close releases fd. Closing the last handle on an unlinked file frees it.
func (s *Session) Close(fd handle.Fd) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	h, err := s.handles.Release(fd)
	if err != nil {
		return err
	}
	s.fsys.release(op, h.Inum)
	op.Commit()
	s.log.WithFields(log.Fields{"fd": fd, "inum": h.Inum}).Debug("[FS] close")
	return nil
}

// Read returns up to n bytes at fd's offset and advances the offset by the
// number of bytes returned. It returns fewer than n bytes at end of file.
func (s *Session) Read(fd handle.Fd, n uint64) ([]byte, error) {
	op, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer s.unlock()
	h, err := s.handles.Get(fd)
	if err != nil {
		return nil, err
	}
	if !h.Mode.CanRead() {
		return nil, fmt.Errorf("fd %d not open for reading: %w", fd, common.ErrInvalidHandle)
	}
	ip := s.fsys.tbl.Get(op, h.Inum)
	data := ip.ReadAt(op, h.Offset, n)
	h.Offset += uint64(len(data))
	return data, nil
}

// Write writes data at fd's offset, extending the file as needed, and
// advances the offset. Writing past end of file zero-fills the gap.
func (s *Session) Write(fd handle.Fd, data []byte) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	h, err := s.handles.Get(fd)
	if err != nil {
		return err
	}
	if !h.Mode.CanWrite() {
		return fmt.Errorf("fd %d not open for writing: %w", fd, common.ErrInvalidHandle)
	}
	ip := s.fsys.tbl.Get(op, h.Inum)
	if err := ip.WriteAt(op, h.Offset, data); err != nil {
		return err
	}
	op.Commit()
	h.Offset += uint64(len(data))
	return nil
}

// Lseek moves fd's offset to pos. Any non-negative position is allowed.
func (s *Session) Lseek(fd handle.Fd, pos int64) error {
	_, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	h, err := s.handles.Get(fd)
	if err != nil {
		return err
	}
	if pos < 0 {
		return fmt.Errorf("seek to %d: %w", pos, common.ErrInvalidArgument)
	}
	h.Offset = uint64(pos)
	return nil
}

// Pattern is the content Create fills a file with.
func Pattern(size uint64) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('A' + i%37)
	}
	return data
}

// Create makes a regular file of size bytes filled with Pattern.
func (s *Session) Create(path string, size uint64) error {
	if size > common.MaxFileSize {
		return fmt.Errorf("create %q: size %d: %w", path, size, common.ErrFileTooLarge)
	}
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	dip, name, err := s.lookupParent(op, path)
	if err != nil {
		return err
	}
	ip, err := s.createFile(op, dip, name)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if err := ip.WriteAt(op, 0, Pattern(size)); err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	op.Commit()
	s.log.WithField("inum", ip.Inum).Debugf("[FS] create %q size=%d", path, size)
	return nil
}

// Mkdir makes an empty directory.
func (s *Session) Mkdir(path string) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	dip, name, err := s.lookupParent(op, path)
	if err != nil {
		return err
	}
	if err := dir.ValidName(name); err != nil {
		return err
	}
	if _, err := dir.Lookup(op, dip, name); err == nil {
		return fmt.Errorf("mkdir %q: %w", path, common.ErrExists)
	}
	ip, err := s.fsys.tbl.Alloc(op, common.KindDir)
	if err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	ip.Nlink = 2
	ip.Put(op)
	if err := dir.Init(op, ip, dip.Inum); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	if err := dir.Add(op, dip, name, ip.Inum); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	dip.Nlink++
	dip.Put(op)
	op.Commit()
	s.log.WithField("inum", ip.Inum).Debugf("[FS] mkdir %q", path)
	return nil
}

// Rmdir removes an empty directory that is neither open nor any session's
// current directory.
func (s *Session) Rmdir(path string) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	dip, name, err := s.lookupParent(op, path)
	if err != nil {
		return err
	}
	if name == dir.Dot || name == dir.DotDot {
		return fmt.Errorf("rmdir %q: %w", path, common.ErrInvalidName)
	}
	inum, err := dir.Lookup(op, dip, name)
	if err != nil {
		return err
	}
	ip := s.fsys.tbl.Get(op, inum)
	if !ip.IsDir() {
		return fmt.Errorf("rmdir %q: %w", path, common.ErrNotDir)
	}
	if !dir.IsEmpty(op, ip) {
		return fmt.Errorf("rmdir %q: %w", path, common.ErrNotEmpty)
	}
	if s.fsys.opens[inum] > 0 {
		return fmt.Errorf("rmdir %q: open: %w", path, common.ErrBusy)
	}
	for _, other := range s.fsys.sessions {
		if other.cwd == inum {
			return fmt.Errorf("rmdir %q: current directory of a session: %w", path, common.ErrBusy)
		}
	}
	if _, err := dir.Remove(op, dip, name); err != nil {
		return err
	}
	dip.Nlink--
	dip.Put(op)
	ip.Free(op)
	op.Commit()
	s.log.WithField("inum", inum).Debugf("[FS] rmdir %q", path)
	return nil
}

// Cd changes the current directory; on failure it stays where it was.
func (s *Session) Cd(path string) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	ip, err := s.lookup(op, path)
	if err != nil {
		return err
	}
	if !ip.IsDir() {
		return fmt.Errorf("cd %q: %w", path, common.ErrNotDir)
	}
	s.cwd = ip.Inum
	return nil
}

// Pwd returns the absolute path of the current directory.
func (s *Session) Pwd() (string, error) {
	op, err := s.lock()
	if err != nil {
		return "", err
	}
	defer s.unlock()
	return s.pathOf(op, s.cwd)
}

// Link adds a new name for an existing regular file.
func (s *Session) Link(oldPath string, newPath string) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	ip, err := s.lookup(op, oldPath)
	if err != nil {
		return err
	}
	if ip.IsDir() {
		return fmt.Errorf("link %q: %w", oldPath, common.ErrIsDir)
	}
	dip, name, err := s.lookupParent(op, newPath)
	if err != nil {
		return err
	}
	if err := dir.Add(op, dip, name, ip.Inum); err != nil {
		return fmt.Errorf("link %q: %w", newPath, err)
	}
	ip.Nlink++
	ip.Put(op)
	op.Commit()
	return nil
}

// Unlink removes a name of a regular file. When the last name goes the file
// is freed, unless it is still open, in which case the last Close frees it.
func (s *Session) Unlink(path string) error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	dip, name, err := s.lookupParent(op, path)
	if err != nil {
		return err
	}
	inum, err := dir.Lookup(op, dip, name)
	if err != nil {
		return err
	}
	ip := s.fsys.tbl.Get(op, inum)
	if ip.IsDir() {
		return fmt.Errorf("unlink %q: %w", path, common.ErrIsDir)
	}
	if _, err := dir.Remove(op, dip, name); err != nil {
		return err
	}
	ip.Nlink--
	if ip.Nlink == 0 && s.fsys.opens[inum] == 0 {
		ip.Free(op)
	} else {
		ip.Put(op)
	}
	op.Commit()
	s.log.WithFields(log.Fields{"inum": inum, "nlink": ip.Nlink}).Debugf("[FS] unlink %q", path)
	return nil
}

// Entry is one line of a directory listing.
type Entry struct {
	Name string
	Inum common.Inum
	Kind common.Kind
	Size uint64
}

// Ls lists the directory at path (the current directory if path is empty)
// in insertion order. A regular file lists as itself.
func (s *Session) Ls(path string) ([]Entry, error) {
	op, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer s.unlock()
	ip, err := s.lookup(op, path)
	if err != nil {
		return nil, err
	}
	if !ip.IsDir() {
		comps := splitPath(path)
		return []Entry{{Name: comps[len(comps)-1], Inum: ip.Inum, Kind: ip.Kind, Size: ip.Size}}, nil
	}
	ents, err := dir.List(op, ip)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, de := range ents {
		cip := s.fsys.tbl.Get(op, de.Inum)
		out = append(out, Entry{Name: de.Name, Inum: de.Inum, Kind: cip.Kind, Size: cip.Size})
	}
	return out, nil
}

// Stat describes an inode.
type Stat struct {
	Inum   common.Inum
	Kind   common.Kind
	Nlink  uint64
	Size   uint64
	Blocks uint64
}

func (s *Session) Stat(path string) (Stat, error) {
	op, err := s.lock()
	if err != nil {
		return Stat{}, err
	}
	defer s.unlock()
	ip, err := s.lookup(op, path)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Inum:   ip.Inum,
		Kind:   ip.Kind,
		Nlink:  ip.Nlink,
		Size:   ip.Size,
		Blocks: ip.NumBlocks(),
	}, nil
}

// Exit closes the session's handles and flushes the image. The session
// cannot be used afterwards.
func (s *Session) Exit() error {
	op, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock()
	for _, h := range s.handles.Clear() {
		s.fsys.release(op, h.Inum)
	}
	op.Commit()
	s.closed = true
	delete(s.fsys.sessions, s.id)
	s.log.Debug("[FS] session exit")
	return s.fsys.cache.Flush()
}
