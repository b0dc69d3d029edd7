// Package shell runs the line-oriented command protocol against a session.
//
// Each input line is one command; arguments are separated by spaces. Replies
// are plain text lines.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/fs"
	"github.com/mit-pdos/go-blockfs/handle"
)

// catChunk is how many bytes cat reads at a time.
const catChunk = 256

type command struct {
	minArgs int
	maxArgs int
	usage   string
	run     func(sh *Shell, args []string)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"exit":   {0, 0, "", (*Shell).exit},
		"mkfs":   {0, 0, "", (*Shell).mkfs},
		"open":   {2, 2, " name mode", (*Shell).open},
		"read":   {2, 2, " fd count", (*Shell).read},
		"write":  {2, 2, " fd data", (*Shell).write},
		"lseek":  {2, 2, " fd offset", (*Shell).lseek},
		"close":  {1, 1, " fd", (*Shell).close},
		"mkdir":  {1, 1, " name", (*Shell).mkdir},
		"rmdir":  {1, 1, " name", (*Shell).rmdir},
		"cd":     {1, 1, " path", (*Shell).cd},
		"link":   {2, 2, " old new", (*Shell).link},
		"unlink": {1, 1, " name", (*Shell).unlink},
		"stat":   {1, 1, " path", (*Shell).stat},
		"ls":     {0, 1, " [path]", (*Shell).ls},
		"create": {2, 2, " name size", (*Shell).create},
		"cat":    {1, 1, " name", (*Shell).cat},
		"pwd":    {0, 0, "", (*Shell).pwd},
		"df":     {0, 0, "", (*Shell).df},
		"fsck":   {0, 0, "", (*Shell).fsck},
	}
}

type Options struct {
	// Prompt prints "# " before reading each line.
	Prompt bool
}

type Shell struct {
	fsys *fs.FileSys
	s    *fs.Session
	out  *bufio.Writer
	opts Options
	done bool
}

// New starts a session on fsys whose replies go to out.
func New(fsys *fs.FileSys, out io.Writer, opts Options) *Shell {
	return &Shell{
		fsys: fsys,
		s:    fsys.NewSession(),
		out:  bufio.NewWriter(out),
		opts: opts,
	}
}

func (sh *Shell) println(a ...interface{}) {
	fmt.Fprintln(sh.out, a...)
}

func (sh *Shell) printf(format string, a ...interface{}) {
	fmt.Fprintf(sh.out, format, a...)
}

// fail prints msg for a failed command and logs the cause.
func (sh *Shell) fail(msg string, err error) {
	log.WithError(err).Debugf("[SHELL] %s", msg)
	sh.println(msg)
}

// Exec runs one command line and reports whether the session has ended.
func (sh *Shell) Exec(line string) bool {
	defer sh.out.Flush()
	if sh.done {
		return true
	}
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return false
	}
	cmd, ok := commands[argv[0]]
	if !ok {
		sh.println(argv[0] + " : Command not found.")
		return false
	}
	args := argv[1:]
	if len(args) < cmd.minArgs || len(args) > cmd.maxArgs {
		sh.println("Usage : " + argv[0] + cmd.usage)
		return false
	}
	log.Tracef("[SHELL] %q", line)
	cmd.run(sh, args)
	return sh.done
}

// Run executes commands from in until exit or end of input. End of input
// ends the session like exit, without the farewell.
func (sh *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if sh.opts.Prompt {
			sh.printf("# ")
			sh.out.Flush()
		}
		if !scanner.Scan() {
			break
		}
		if sh.Exec(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	sh.done = true
	return sh.s.Exit()
}

func parseFd(s string) (handle.Fd, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fd %q: %w", s, common.ErrInvalidHandle)
	}
	return handle.Fd(n), nil
}

func parseUint(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, common.ErrInvalidArgument)
	}
	return n, nil
}

func (sh *Shell) exit(args []string) {
	sh.done = true
	if err := sh.s.Exit(); err != nil {
		sh.fail("exit failed", err)
		return
	}
	sh.println("Goodbye")
}

func (sh *Shell) mkfs(args []string) {
	if err := sh.s.Mkfs(); err != nil {
		sh.fail("mkfs failed", err)
	}
}

func (sh *Shell) open(args []string) {
	mode, err := parseUint(args[1])
	if err == nil {
		var fd handle.Fd
		fd, err = sh.s.Open(args[0], handle.Mode(mode))
		if err == nil {
			sh.printf("File handle is : %d\n", fd)
			return
		}
	}
	sh.fail("Error while opening file", err)
}

func (sh *Shell) read(args []string) {
	fd, err := parseFd(args[0])
	if err != nil {
		sh.fail("Read failed", err)
		return
	}
	n, err := parseUint(args[1])
	if err != nil {
		sh.fail("Read failed", err)
		return
	}
	if n > common.MaxFileSize {
		sh.println("Requested size too big")
		return
	}
	data, err := sh.s.Read(fd, n)
	if err != nil {
		sh.fail("Read failed", err)
		return
	}
	sh.println("Data read in : " + string(data))
}

func (sh *Shell) write(args []string) {
	fd, err := parseFd(args[0])
	if err == nil {
		err = sh.s.Write(fd, []byte(args[1]))
	}
	if err != nil {
		sh.fail("Error while writing file", err)
		return
	}
	sh.println("Done")
}

func (sh *Shell) lseek(args []string) {
	fd, err := parseFd(args[0])
	if err == nil {
		var pos int64
		pos, err = strconv.ParseInt(args[1], 10, 64)
		if err == nil {
			err = sh.s.Lseek(fd, pos)
		}
	}
	if err != nil {
		sh.fail("Problem with seeking", err)
		return
	}
	sh.println("OK")
}

func (sh *Shell) close(args []string) {
	fd, err := parseFd(args[0])
	if err == nil {
		err = sh.s.Close(fd)
	}
	if err != nil {
		sh.fail("Problem with closing file", err)
		return
	}
	sh.println("OK")
}

func (sh *Shell) mkdir(args []string) {
	if err := sh.s.Mkdir(args[0]); err != nil {
		sh.fail("Problem with making directory", err)
		return
	}
	sh.println("OK")
}

func (sh *Shell) rmdir(args []string) {
	if err := sh.s.Rmdir(args[0]); err != nil {
		sh.fail("Problem with removing directory", err)
		return
	}
	sh.println("OK")
}

func (sh *Shell) cd(args []string) {
	if err := sh.s.Cd(args[0]); err != nil {
		sh.fail("Problem with changing directory", err)
		return
	}
	sh.println("OK")
}

func (sh *Shell) link(args []string) {
	if err := sh.s.Link(args[0], args[1]); err != nil {
		sh.fail("Problem with link", err)
	}
}

func (sh *Shell) unlink(args []string) {
	if err := sh.s.Unlink(args[0]); err != nil {
		sh.fail("Problem with unlink", err)
	}
}

func (sh *Shell) stat(args []string) {
	st, err := sh.s.Stat(args[0])
	if err != nil {
		sh.fail("Stat failed", err)
		return
	}
	sh.printf("    Inode No         : %d\n", st.Inum)
	sh.printf("    Type             : %v\n", st.Kind)
	sh.printf("    Link Count       : %d\n", st.Nlink)
	sh.printf("    Size             : %d\n", st.Size)
	sh.printf("    Blocks allocated : %d\n", st.Blocks)
}

func pad(n int) string {
	if n < 1 {
		n = 1
	}
	return strings.Repeat(" ", n)
}

func (sh *Shell) ls(args []string) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	ents, err := sh.s.Ls(path)
	if err != nil {
		sh.fail("Problem with ls", err)
		return
	}
	width := int(common.MaxNameLen)
	sh.println("Name" + pad(width-3) + "Type Inode Size")
	for _, e := range ents {
		kind := "F"
		if e.Kind == common.KindDir {
			kind = "D"
		}
		sh.printf("%s%s%s    %d     %d\n", e.Name, pad(width-len(e.Name)+1), kind, e.Inum, e.Size)
	}
}

func (sh *Shell) create(args []string) {
	size, err := parseUint(args[1])
	if err == nil {
		err = sh.s.Create(args[0], size)
	}
	if err != nil {
		sh.fail("Error creating file", err)
	}
}

func (sh *Shell) cat(args []string) {
	fd, err := sh.s.Open(args[0], handle.ModeRead)
	if err != nil {
		sh.fail("Cat failed", err)
		return
	}
	for {
		data, err := sh.s.Read(fd, catChunk)
		if err != nil || len(data) == 0 {
			break
		}
		sh.out.Write(data)
	}
	sh.s.Close(fd)
	sh.println()
}

func (sh *Shell) pwd(args []string) {
	p, err := sh.s.Pwd()
	if err != nil {
		sh.fail("Problem with pwd", err)
		return
	}
	sh.println(p)
}

func (sh *Shell) df(args []string) {
	info := sh.fsys.Df()
	sh.printf("    Blocks           : %d\n", info.Blocks)
	sh.printf("    Data blocks      : %d\n", info.DataBlocks)
	sh.printf("    Free blocks      : %d\n", info.FreeBlocks)
	sh.printf("    Inodes           : %d\n", info.Inodes)
	sh.printf("    Free inodes      : %d\n", info.FreeInodes)
}

func (sh *Shell) fsck(args []string) {
	problems := sh.fsys.Fsck()
	for _, p := range problems {
		sh.println(p)
	}
	if len(problems) == 0 {
		sh.println("File system OK")
		return
	}
	sh.printf("%d problems found\n", len(problems))
}
