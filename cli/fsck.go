package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/fs"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Check the image for inconsistencies",
	Long: `Walk the directory tree and check that the bitmaps, block pointers,
sizes and link counts agree. Exits non-zero if a problem is found.`,
	Args: cobra.NoArgs,
	RunE: runFsck,
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}

func runFsck(cmd *cobra.Command, args []string) error {
	fsys, err := mountImage(cmd)
	if err != nil {
		return err
	}
	defer fsys.Close()
	problems := fsys.Fsck()
	out := cmd.OutOrStdout()
	for _, p := range problems {
		fmt.Fprintln(out, p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %d problems", cfg.Image, len(problems))
	}
	info := fsys.Df()
	fmt.Fprintf(out, "%s: clean, %d/%d inodes, %d/%d blocks free\n",
		cfg.Image, info.FreeInodes, info.Inodes, info.FreeBlocks, info.Blocks)
	return nil
}

// mountImage opens an existing image for inspection. A missing image or one
// without a file system is an error; the image is never created or
// formatted.
func mountImage(cmd *cobra.Command) (*fs.FileSys, error) {
	if _, err := os.Stat(cfg.Image); err != nil {
		return nil, err
	}
	d, err := disk.NewFileDisk(cmd.Context(), cfg.Image, 0)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.MountExisting(d)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Image, err)
	}
	return fsys, nil
}
