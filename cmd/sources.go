package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"reelscout/internal/media"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List custom sources, catalog sources and embeds",
	Args:  cobra.NoArgs,
	RunE:  sourcesRun,
}

type sourceRow struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"`
	Disabled bool   `json:"disabled"`
}

func sourcesRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	prefs := a.store.Preferences()
	rows := func(kind string, ds []media.SourceDescriptor, disabled []string) []sourceRow {
		return lo.Map(ds, func(d media.SourceDescriptor, _ int) sourceRow {
			return sourceRow{Kind: kind, ID: d.ID, Name: d.Name, Rank: d.Rank, Disabled: lo.Contains(disabled, d.ID)}
		})
	}
	sources, embeds := a.registry.Sources(), a.registry.Embeds()
	if a.remote != nil && !a.bridge.Active() {
		sources, embeds = a.remote.Sources(), a.remote.Embeds()
	}

	var all []sourceRow
	all = append(all, rows("custom", a.customs.Descriptors(), prefs.DisabledSources)...)
	all = append(all, rows("source", sources, prefs.DisabledSources)...)
	all = append(all, rows("embed", embeds, prefs.DisabledEmbeds)...)

	if flagJSON {
		return printJSON(all)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tNAME\tRANK\t")
	for _, r := range all {
		state := ""
		if r.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Kind, r.ID, r.Name, r.Rank, state)
	}
	return w.Flush()
}
