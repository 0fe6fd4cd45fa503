package cmd

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"reelscout/internal/media"
)

var trendingCmd = &cobra.Command{
	Use:   "trending [movies|tv]",
	Short: "Browse trending content",
	Args:  cobra.MaximumNArgs(1),
	RunE:  trendingRun,
}

func trendingRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.flix.Trending(ctx, parseKindArg(args))
	if err != nil {
		return errors.Wrap(err, "getting trending")
	}
	return a.pickAndPlay(ctx, "Trending", results)
}

var recentCmd = &cobra.Command{
	Use:   "recent [movies|tv]",
	Short: "Browse recently added content",
	Args:  cobra.MaximumNArgs(1),
	RunE:  recentRun,
}

func recentRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.flix.Recent(ctx, parseKindArg(args))
	if err != nil {
		return errors.Wrap(err, "getting recent")
	}
	return a.pickAndPlay(ctx, "Recent", results)
}

func parseKindArg(args []string) media.Kind {
	if len(args) == 0 {
		return media.Movie // Default
	}
	switch strings.ToLower(args[0]) {
	case "tv", "show", "shows", "series":
		return media.Show
	default:
		return media.Movie
	}
}
