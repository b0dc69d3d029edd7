// Package cli implements the blockfs command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-blockfs/config"
	"github.com/mit-pdos/go-blockfs/disk"
)

var (
	flagConfig   string
	flagImage    string
	flagSize     uint64
	flagInodes   uint64
	flagLogLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "blockfs",
	Short: "Block-based file system on a disk image",
	Long: `blockfs stores files and directories in a fixed-size disk image
made of 512-byte blocks, with an inode table, block and inode bitmaps and
directories kept as files.

Settings come from a YAML file (--config or $BLOCKFS_CONFIG); flags override
the file.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default $"+config.EnvPath+")")
	pf.StringVar(&flagImage, "image", "", "disk image path (default \""+config.DefaultImage+"\")")
	pf.Uint64Var(&flagSize, "size", 0, "image size in bytes")
	pf.Uint64Var(&flagInodes, "inodes", 0, "number of inodes for a new file system")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, off")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromPath(config.Path(flagConfig))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("image") {
		c.Image = flagImage
	}
	if flags.Changed("size") {
		c.Size = flagSize
	}
	if flags.Changed("inodes") {
		c.Inodes = flagInodes
	}
	if flags.Changed("log-level") {
		c.LogLevel = strings.ToLower(flagLogLevel)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	setupLogging(c.LogLevel, cmd.ErrOrStderr())
	cfg = c
	return nil
}

func setupLogging(level string, w io.Writer) {
	if level == "off" {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(w)
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}

// openImage opens the configured image. An existing image keeps its size
// unless --size was given; a new one gets the configured size.
func openImage(ctx context.Context, cmd *cobra.Command) (*disk.FileDisk, error) {
	blocks := cfg.Blocks()
	if !cmd.Flags().Changed("size") {
		if st, err := os.Stat(cfg.Image); err == nil && st.Size() > 0 {
			blocks = 0
		}
	}
	return disk.NewFileDisk(ctx, cfg.Image, blocks)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
