package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat path",
	Short: "Show the inode of a path in the image",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	fsys, err := mountImage(cmd)
	if err != nil {
		return err
	}
	defer fsys.Close()
	st, err := fsys.NewSession().Stat(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Inode:  %d\n", st.Inum)
	fmt.Fprintf(out, "Type:   %v\n", st.Kind)
	fmt.Fprintf(out, "Links:  %d\n", st.Nlink)
	fmt.Fprintf(out, "Size:   %d\n", st.Size)
	fmt.Fprintf(out, "Blocks: %d\n", st.Blocks)
	return nil
}
