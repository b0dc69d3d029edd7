package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/fs"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Create an empty file system on the image",
	Long: `Create or overwrite the image with an empty file system of --size bytes
and --inodes inodes.

Examples:
  blockfs mkfs --image disk
  blockfs mkfs --image disk --size 4194304 --inodes 2048`,
	Args: cobra.NoArgs,
	RunE: runMkfs,
}

func init() {
	rootCmd.AddCommand(mkfsCmd)
}

func runMkfs(cmd *cobra.Command, args []string) error {
	d, err := disk.NewFileDisk(cmd.Context(), cfg.Image, cfg.Blocks())
	if err != nil {
		return err
	}
	fsys, err := fs.Format(d, cfg.Inodes)
	if err != nil {
		d.Close()
		return err
	}
	info := fsys.Df()
	if err := fsys.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d blocks (%d data), %d inodes\n",
		cfg.Image, info.Blocks, info.DataBlocks, info.Inodes)
	return nil
}
