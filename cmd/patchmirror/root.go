package main

import (
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/config"
	"github.com/conn-castle/patchmirror/internal/logging"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/mirror"
	"github.com/conn-castle/patchmirror/internal/patcher"
)

// Test seams.
var (
	newFs     = afero.NewOsFs
	newClient = func(cfg *config.Config) patcher.Client {
		if cfg.Upstream.URL == "" {
			return nil
		}
		return patcher.NewHTTPClient(cfg.Upstream.URL, cfg.UpstreamTimeout(), cfg.Upstream.MaxDownloadBytes)
	}
)

type rootOptions struct {
	configPath string
	logLevel   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Flags().Bool("version", false, messages.RootVersionFlag)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultFile, messages.RootConfigFlag)
	flags.StringVar(&opts.logLevel, "log-level", "", messages.RootLogLevelFlag)
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, messages.RootVerboseFlag)

	cmd.AddCommand(
		newNewPatchCmd(opts),
		newUpdateCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newSweepPBECmd(opts),
	)
	return cmd
}

// session holds what a subcommand needs to run against the mirror.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	mirror *mirror.Mirror
}

// open loads the configuration and builds the mirror. Log output goes to
// stderr so stdout stays usable for command output.
func (o *rootOptions) open(stderr io.Writer) (*session, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	if o.verbose {
		level = logging.LevelDebug
	}
	logger, err := logging.New(level, stderr)
	if err != nil {
		return nil, err
	}
	mopts := []mirror.Option{mirror.WithLogger(logger)}
	if client := newClient(cfg); client != nil {
		mopts = append(mopts, mirror.WithClient(client))
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		mirror: mirror.New(newFs(), cfg, mopts...),
	}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}
