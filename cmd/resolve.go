package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"reelscout/internal/media"
)

var (
	flagResolveType      string
	flagResolveIMDb      string
	flagResolveTitle     string
	flagResolveYear      int
	flagResolveSeason    int
	flagResolveSeasonID  string
	flagResolveEpisode   int
	flagResolveEpisodeID string
	flagResumeAfter      string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a stream for an explicit media descriptor",
	Long: `Resolve runs one session for the movie or episode described by the flags,
without searching. The id is the catalog id the providers are queried with.`,
	Example: `  reelscout resolve 603 --title "The Matrix" --year 1999 --json
  reelscout resolve 1396 --type show --title "Breaking Bad" --season 1 --season-id 3572 --episode 2 --episode-id 62086`,
	Args: cobra.ExactArgs(1),
	RunE: resolveRun,
}

func init() {
	f := resolveCmd.Flags()
	f.StringVarP(&flagResolveType, "type", "t", "movie", "Media type: movie | show")
	f.StringVar(&flagResolveIMDb, "imdb", "", "IMDb id (tt...)")
	f.StringVar(&flagResolveTitle, "title", "", "Title")
	f.IntVar(&flagResolveYear, "year", 0, "Release year")
	f.IntVar(&flagResolveSeason, "season", 0, "Season number")
	f.StringVar(&flagResolveSeasonID, "season-id", "", "Season id")
	f.IntVar(&flagResolveEpisode, "episode", 0, "Episode number")
	f.StringVar(&flagResolveEpisodeID, "episode-id", "", "Episode id")
	f.StringVar(&flagResumeAfter, "resume-after", "", "Continue strictly after this source id")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	d, err := descriptorFromFlags(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.playFlow(ctx, d, flagResumeAfter)
}

func descriptorFromFlags(id string) (media.Descriptor, error) {
	kind, err := media.ParseKind(flagResolveType)
	if err != nil {
		return media.Descriptor{}, err
	}
	d := media.Descriptor{
		Kind:        kind,
		ExternalID:  id,
		IMDbID:      flagResolveIMDb,
		Title:       flagResolveTitle,
		ReleaseYear: flagResolveYear,
	}
	if kind == media.Show {
		d.Season = &media.Ref{Number: flagResolveSeason, ID: flagResolveSeasonID}
		d.Episode = &media.Ref{Number: flagResolveEpisode, ID: flagResolveEpisodeID}
	}
	if err := d.Validate(); err != nil {
		return media.Descriptor{}, errors.Wrap(err, "invalid descriptor")
	}
	return d, nil
}
