package cli

import (
	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-blockfs/fs"
	"github.com/mit-pdos/go-blockfs/shell"
)

var flagPrompt bool

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the command protocol on stdin",
	Long: `Read commands from stdin, one per line, and run them against the image.
An image without a file system is formatted first. Changes are written to
the image on exit or at end of input.

Commands:
  mkfs, open name mode, close fd, read fd n, write fd data, lseek fd pos,
  create name size, mkdir name, rmdir name, cd path, link old new,
  unlink name, ls [path], stat path, cat name, pwd, df, fsck, exit`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	shellCmd.Flags().BoolVar(&flagPrompt, "prompt", false, "print a prompt before each command")
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	d, err := openImage(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	fsys, err := fs.Mount(d, cfg.Inodes)
	if err != nil {
		d.Close()
		return err
	}
	sh := shell.New(fsys, cmd.OutOrStdout(), shell.Options{Prompt: flagPrompt})
	runErr := sh.Run(cmd.InOrStdin())
	if err := fsys.Close(); err != nil {
		return err
	}
	return runErr
}
