package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"reelscout/internal/download"
	"reelscout/internal/media"
	"reelscout/internal/player"
	"reelscout/internal/scrape"
	"reelscout/internal/subtitle"
	"reelscout/internal/ui"
)

// searchRun is the default command: reelscout <query>
func searchRun(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	if query == "" {
		// Prompt for query via fzf
		var err error
		query, err = ui.Input("Search")
		if err != nil {
			return errors.New("no search query provided")
		}
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	debugf("searching for: %s", query)
	results, err := a.flix.Search(ctx, query)
	if err != nil {
		return errors.Wrap(err, "search failed")
	}
	return a.pickAndPlay(ctx, "Select", results)
}

// pickAndPlay lets the user choose one of results and plays it.
func (a *app) pickAndPlay(ctx context.Context, prompt string, results []media.SearchResult) error {
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing found.")
		return nil
	}

	items := make([]string, len(results))
	for i, r := range results {
		items[i] = r.DisplayTitle()
	}
	idx, err := ui.Select(prompt, items)
	if err != nil {
		return err
	}

	selected := results[idx]
	debugf("selected: %s (ID: %s, type: %s)", selected.Title, selected.ID, selected.Type)

	d, err := a.describe(ctx, selected)
	if err != nil {
		return err
	}
	return a.playFlow(ctx, d, "")
}

// describe turns a search result into a descriptor, asking for the season
// and episode of shows.
func (a *app) describe(ctx context.Context, r media.SearchResult) (media.Descriptor, error) {
	d := media.Descriptor{
		Kind:       r.Type,
		ExternalID: r.ID,
		Title:      r.Title,
	}
	if year, err := strconv.Atoi(r.Year); err == nil {
		d.ReleaseYear = year
	}
	if r.Type != media.Show {
		return d, nil
	}

	seasons, err := a.flix.GetSeasons(ctx, r.ID)
	if err != nil {
		return d, errors.Wrap(err, "getting seasons")
	}
	if len(seasons) == 0 {
		return d, errors.New("no seasons found")
	}
	seasonItems := make([]string, len(seasons))
	for i, s := range seasons {
		seasonItems[i] = fmt.Sprintf("Season %d", s.Number)
	}
	seasonIdx, err := ui.Select("Season", seasonItems)
	if err != nil {
		return d, err
	}
	season := seasons[seasonIdx]
	debugf("season: %d (ID: %s)", season.Number, season.ID)

	episodes, err := a.flix.GetEpisodes(ctx, season.ID)
	if err != nil {
		return d, errors.Wrap(err, "getting episodes")
	}
	if len(episodes) == 0 {
		return d, errors.New("no episodes found")
	}
	episodeItems := make([]string, len(episodes))
	for i, ep := range episodes {
		if ep.Title != "" {
			episodeItems[i] = fmt.Sprintf("Episode %d: %s", ep.Number, ep.Title)
		} else {
			episodeItems[i] = fmt.Sprintf("Episode %d", ep.Number)
		}
	}
	episodeIdx, err := ui.Select("Episode", episodeItems)
	if err != nil {
		return d, err
	}
	episode := episodes[episodeIdx]
	debugf("episode: %d (ID: %s)", episode.Number, episode.ID)

	d.Season = &media.Ref{Number: season.Number, ID: season.ID}
	d.Episode = &media.Ref{Number: episode.Number, ID: episode.ID}
	return d, nil
}

// resolve runs one session for d under a progress view.
func (a *app) resolve(ctx context.Context, d media.Descriptor, resumeAfter string) (*media.RunOutput, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := a.watch(d.DisplayTitle(), cancel)
	out, err := a.scrape.Run(ctx, d, scrape.RunOptions{ResumeAfter: resumeAfter})
	stop()

	if flagReport {
		a.printReport()
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.Errorf("no stream found for %s", d.DisplayTitle())
	}
	debugf("resolved by %s/%s", out.SourceID, out.EmbedID)
	return out, nil
}

// playFlow resolves d and consumes the result. A stream the player could
// not open is remembered as failed and the session resumes after its
// source.
func (a *app) playFlow(ctx context.Context, d media.Descriptor, resumeAfter string) error {
	title := d.DisplayTitle()
	for {
		out, err := a.resolve(ctx, d, resumeAfter)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(out)
		}

		req, err := player.NewRequest(out, title, media.Quality(cfg.Quality), a.bridge)
		if err != nil {
			return err
		}

		subs, cleanup := a.subtitles(ctx, out)
		if flagDownload != "" {
			err := a.download(ctx, req, subs)
			cleanup()
			return err
		}
		req.SubFiles = subs

		ok, err := a.play(ctx, req)
		cleanup()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := a.store.AddFailure(ctx, d.Key(), out.SourceID, out.EmbedID); err != nil {
			debugf("recording failure: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Trying the next source after %s...\n", out.SourceID)
		resumeAfter = out.SourceID
	}
}

// play runs the player and reports whether the stream played.
func (a *app) play(ctx context.Context, req player.Request) (bool, error) {
	p := player.New(cfg.Player)
	if !p.Available() {
		return false, errors.Errorf("player %q not found in PATH", cfg.Player)
	}
	err := p.Play(ctx, req)
	switch {
	case errors.Is(err, player.ErrPlaybackFailed):
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "playback failed")
	}
	played, err := ui.Confirm("Did it play?")
	if errors.Is(err, ui.ErrCancelled) {
		return true, nil
	}
	return played, err
}

// subtitles downloads the caption best matching the configured language.
func (a *app) subtitles(ctx context.Context, out *media.RunOutput) ([]string, func()) {
	noop := func() {}
	if flagNoSubs || len(out.Stream.Captions) == 0 {
		return nil, noop
	}
	best := subtitle.BestMatch(out.Stream.Captions, cfg.SubsLanguage)
	if best == nil {
		return nil, noop
	}
	tmp, err := subtitle.NewTempDir(a.client)
	if err != nil {
		debugf("subtitle dir: %v", err)
		return nil, noop
	}
	path, err := tmp.Download(ctx, *best, out.Stream.Headers)
	if err != nil {
		debugf("subtitle download failed: %v", err)
		tmp.Cleanup()
		return nil, noop
	}
	debugf("subtitle file: %s", path)
	return []string{path}, tmp.Cleanup
}

func (a *app) download(ctx context.Context, req player.Request, subs []string) error {
	dir := flagDownload
	if dir == downloadToConfigDir {
		var err error
		if dir, err = cfg.ExpandDownloadDir(); err != nil {
			return errors.Wrap(err, "resolving download dir")
		}
	}
	dreq := download.Request{
		URL:       req.URL,
		Title:     req.Title,
		OutputDir: dir,
		Headers:   req.Headers,
		Size:      req.Size,
	}
	if len(subs) > 0 {
		dreq.SubFile = subs[0]
	}
	path, err := download.Download(ctx, dreq)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Downloaded: %s\n", path)
	return nil
}

func (a *app) printReport() {
	snap, ok := a.scrape.Snapshot()
	if !ok {
		return
	}
	for _, l := range snap.Report() {
		line := fmt.Sprintf("%-10s %-24s %s", l.Status, l.Name, l.ID)
		if l.Reason != "" {
			line += "  " + l.Reason
		}
		if l.Error != "" {
			line += "  " + l.Error
		}
		fmt.Fprintln(os.Stderr, line)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
