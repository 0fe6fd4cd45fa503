package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"reelscout/internal/media"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Manage remembered source failures",
	Args:  cobra.NoArgs,
	RunE:  failuresListRun,
}

var failuresClearCmd = &cobra.Command{
	Use:   "clear [media-key...]",
	Short: "Forget failures for the given keys, or for everything",
	RunE:  failuresClearRun,
}

func init() {
	failuresCmd.AddCommand(failuresClearCmd)
}

func failuresListRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.store.ListFailures(ctx)
	if err != nil {
		return errors.Wrap(err, "listing failures")
	}
	if flagJSON {
		return printJSON(all)
	}
	if len(all) == 0 {
		fmt.Println("No failures recorded.")
		return nil
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := all[media.Key(k)]
		fmt.Println(k)
		if len(f.Sources) > 0 {
			fmt.Printf("  sources: %s\n", strings.Join(f.Sources, ", "))
		}
		parents := make([]string, 0, len(f.Embeds))
		for p := range f.Embeds {
			parents = append(parents, p)
		}
		sort.Strings(parents)
		for _, p := range parents {
			fmt.Printf("  embeds under %s: %s\n", p, strings.Join(f.Embeds[p], ", "))
		}
	}
	return nil
}

func failuresClearRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	keys := make([]media.Key, 0, len(args))
	for _, k := range args {
		keys = append(keys, media.Key(k))
	}
	if len(keys) == 0 {
		all, err := a.store.ListFailures(ctx)
		if err != nil {
			return errors.Wrap(err, "listing failures")
		}
		for k := range all {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if err := a.store.ClearFailures(ctx, k); err != nil {
			return errors.Wrapf(err, "clearing %s", k)
		}
	}
	fmt.Printf("Cleared failures for %d item(s).\n", len(keys))
	return nil
}
