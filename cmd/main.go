package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ha1tch/blockalloc/cmd/add"
	"github.com/ha1tch/blockalloc/cmd/blocks"
	"github.com/ha1tch/blockalloc/cmd/create"
	"github.com/ha1tch/blockalloc/cmd/defrag"
	"github.com/ha1tch/blockalloc/cmd/delete"
	"github.com/ha1tch/blockalloc/cmd/info"
	"github.com/ha1tch/blockalloc/cmd/list"
	"github.com/ha1tch/blockalloc/cmd/logs"
	"github.com/ha1tch/blockalloc/cmd/optimize"
	"github.com/ha1tch/blockalloc/cmd/serve"
	"github.com/ha1tch/blockalloc/cmd/show"
	"github.com/ha1tch/blockalloc/internal/config"
	"github.com/ha1tch/blockalloc/internal/server"
	"github.com/ha1tch/blockalloc/internal/storage"
	"github.com/ha1tch/blockalloc/pkg/bytesize"
	"github.com/ha1tch/blockalloc/pkg/vdisk"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	jsonOutput bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "blockalloc",
	Short: "Simulate file allocation on a virtual block disk",
	Long: `blockalloc keeps a virtual disk of fixed-size blocks in a SQLite store.
Files are placed with contiguous, linked or indexed allocation, and the disk
can be analysed for fragmentation, defragmented and optimized.`,
	SilenceUsage:      true,
	PersistentPreRun:  func(cmd *cobra.Command, args []string) { setupLogging() },
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the disk store (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	rootCmd.AddCommand(
		newCreateCmd(),
		newAddCmd(),
		newDeleteCmd(),
		newListCmd(),
		newInfoCmd(),
		newShowCmd(),
		newBlocksCmd(),
		newDefragCmd(),
		newOptimizeCmd(),
		newCompressCmd(),
		newResetCmd(),
		newLogsCmd(),
		newServeCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openEngine opens the configured store and restores its disk. A store
// with no disk yet gets one with the configured geometry.
func openEngine(cfg *config.Config) (*vdisk.Engine, func(), error) {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}

	opts := cfg.EngineOptions()
	opts.Store = store
	opts.Logger = &log.Logger

	snap, err := store.LoadSnapshot()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if snap != nil {
		// An existing disk keeps the geometry it was created with
		opts.Geometry = vdisk.Geometry{}
	}

	engine, err := vdisk.Open(opts)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return engine, func() { store.Close() }, nil
}

// withEngine runs fn against the configured disk
func withEngine(fn func(cfg *config.Config, engine *vdisk.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, closeFn, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(cfg, engine)
}

func parseFileID(s string) (vdisk.FileID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file id %q", s)
	}
	return vdisk.FileID(id), nil
}

func newCreateCmd() *cobra.Command {
	opts := create.DefaultCreateOptions()
	var blockSize string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Initialise a new disk in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.Quiet = quiet
			opts.Logger = &log.Logger
			if !cmd.Flags().Changed("blocks") {
				opts.TotalBlocks = cfg.Disk.TotalBlocks
			}
			opts.BlockSize = int(cfg.Disk.BlockSize.Bytes())
			if blockSize != "" {
				n, err := bytesize.Parse(blockSize)
				if err != nil {
					return fmt.Errorf("block size: %w", err)
				}
				opts.BlockSize = int(n)
			}
			return create.Create(cfg.Storage.Path, opts)
		},
	}
	cmd.Flags().IntVar(&opts.TotalBlocks, "blocks", opts.TotalBlocks, "Number of blocks")
	cmd.Flags().StringVar(&blockSize, "block-size", "", "Block size, e.g. 4KB")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Replace an existing disk")
	return cmd
}

func newAddCmd() *cobra.Command {
	opts := add.DefaultAddOptions()
	var allocType string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload a host file onto the disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := vdisk.ParseAllocationType(allocType)
			if err != nil {
				return err
			}
			opts.AllocationType = t
			opts.Quiet = quiet
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return add.Add(e, args[0], opts)
			})
		},
	}
	cmd.Flags().StringVarP(&allocType, "type", "t", "contiguous", "Allocation type: contiguous, linked or indexed")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Store under this filename")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Allow a duplicate filename")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	opts := delete.DefaultDeleteOptions()

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a file and free its blocks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			opts.Quiet = quiet
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return delete.Delete(e, id, opts)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Skip confirmation")
	return cmd
}

func newListCmd() *cobra.Command {
	opts := list.DefaultListOptions()
	var long, raw bool

	cmd := &cobra.Command{
		Use:     "list [pattern]",
		Aliases: []string{"ls", "dir"},
		Short:   "List files on the disk",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Pattern = args[0]
			}
			if long {
				opts.Format = list.FormatLS
			}
			opts.Human = !raw
			opts.JSON = jsonOutput
			opts.Quiet = quiet
			return withEngine(func(cfg *config.Config, e *vdisk.Engine) error {
				opts.Label = cfg.Storage.Path
				return list.List(e, opts)
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "ls-style listing")
	cmd.Flags().StringVarP(&opts.Sort, "sort", "s", opts.Sort, "Sort by id, name, size or type")
	cmd.Flags().BoolVarP(&opts.Reverse, "reverse", "r", false, "Reverse sort order")
	cmd.Flags().BoolVar(&raw, "raw", false, "Sizes in whole KB")
	return cmd
}

func newInfoCmd() *cobra.Command {
	opts := info.DefaultInfoOptions()
	var noCheck bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show usage, fragmentation and consistency of the disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.JSON = jsonOutput
			opts.Quiet = quiet
			opts.Validate = !noCheck
			return withEngine(func(cfg *config.Config, e *vdisk.Engine) error {
				opts.Path = cfg.Storage.Path
				return info.Info(e, opts)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show free runs and orphaned blocks")
	cmd.Flags().BoolVar(&noCheck, "no-check", false, "Skip the consistency check")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the block layout of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return show.Show(e, id, &show.ShowOptions{JSON: jsonOutput})
			})
		},
	}
}

func newBlocksCmd() *cobra.Command {
	opts := blocks.DefaultBlocksOptions()

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Print the block map of the disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.JSON = jsonOutput
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return blocks.Blocks(e, opts)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Width, "width", "w", opts.Width, "Blocks per row")
	return cmd
}

func newDefragCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defrag",
		Short: "Compact every file to the start of the disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return defrag.Defrag(e, &defrag.DefragOptions{JSON: jsonOutput, Quiet: quiet})
			})
		},
	}
}

func newOptimizeCmd() *cobra.Command {
	opts := optimize.DefaultOptimizeOptions()

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Report duplicates and junk, reclaim orphans and defragment",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.JSON = jsonOutput
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return optimize.Optimize(e, opts)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Only report what would be done")
	return cmd
}

func newCompressCmd() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "compress <id>",
		Short: "Mark a file as compressed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				view, err := e.SetCompressed(id, !undo)
				if err != nil {
					return err
				}
				if !quiet {
					fmt.Printf("%s compressed: %t\n", view.Filename, view.IsCompressed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Clear the compressed flag")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Free every block and forget every file, keeping the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				if err := e.Reset(); err != nil {
					return err
				}
				if !quiet {
					fmt.Println("Disk reset")
				}
				return nil
			})
		},
	}
}

func newLogsCmd() *cobra.Command {
	opts := logs.DefaultLogsOptions()

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the audit log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.JSON = jsonOutput
			return withEngine(func(_ *config.Config, e *vdisk.Engine) error {
				return logs.Logs(e, opts)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", opts.Limit, "Events to show, 0 for all")
	return cmd
}

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the disk over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.LogLevel
				setupLogging()
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			engine, closeFn, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve.Serve(ctx, engine, &serve.ServeOptions{
				Server: server.Config{
					Listen:            cfg.Server.Listen,
					AuditDisplayLimit: cfg.Server.AuditDisplayLimit,
					AllowedOrigins:    cfg.Server.AllowedOrigins,
				},
				Logger: log.Logger,
			})
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	return cmd
}
