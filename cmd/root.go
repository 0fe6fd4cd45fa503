// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"reelscout/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagDownload string
	flagLanguage string
	flagNoSubs   bool
	flagQuality  string
	flagPlayer   string
	flagSources  []string
	flagRemote   string
	flagStore    string
	flagJSON     bool
	flagReport   bool
	flagDebug    bool
)

// downloadToConfigDir is the value of a bare --download flag.
const downloadToConfigDir = "@config"

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reelscout [query]",
	Short: "Find a playable stream for a movie or an episode",
	Long: `reelscout walks many streaming providers in a deterministic order until one
yields a playable stream, then plays it with mpv/vlc or downloads it with ffmpeg.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadConfig,
	RunE:              searchRun,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDownload, "download", "d", "", "Download to path instead of playing (default: download_dir)")
	rootCmd.PersistentFlags().Lookup("download").NoOptDefVal = downloadToConfigDir
	rootCmd.PersistentFlags().StringVarP(&flagLanguage, "language", "l", "", "Subtitle language (default: english)")
	rootCmd.PersistentFlags().BoolVarP(&flagNoSubs, "no-subs", "n", false, "Disable subtitles")
	rootCmd.PersistentFlags().StringVarP(&flagQuality, "quality", "q", "", "Video quality: 4k | 1080 | 720 | 480 | 360")
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid")
	rootCmd.PersistentFlags().StringSliceVarP(&flagSources, "sources", "s", nil, "Preferred source order (comma separated ids)")
	rootCmd.PersistentFlags().StringVar(&flagRemote, "remote", "", "Resolver URL for the bulk phase")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Store driver: sqlite | memory | redis")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Output the resolved stream as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagReport, "report", false, "Print the diagnostic report of the session")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(trendingCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("reelscout " + Version)
	},
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	// CLI flags override config file values
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagQuality != "" {
		cfg.Quality = flagQuality
	}
	if flagLanguage != "" {
		cfg.SubsLanguage = flagLanguage
	}
	if len(flagSources) > 0 {
		cfg.Preferences.SourceOrder = flagSources
		cfg.Preferences.EnableSourceOrder = true
	}
	if flagRemote != "" {
		cfg.Remote.URL = flagRemote
	}
	if flagStore != "" {
		cfg.Store.Driver = flagStore
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	setupLogging(cfg)
	return nil
}

func setupLogging(c *config.Config) {
	log.SetOutput(os.Stderr)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: !c.Debug})
	}
	if c.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}

// debugf logs a message if debug mode is enabled.
func debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}
