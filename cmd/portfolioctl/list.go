package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/contentapi"
	"github.com/aleaurre/portfolio-web/internal/render"
)

var sectionDirs = map[string]string{
	"blog": content.BlogDir,
	"work": content.WorkDir,
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "list <blog|work>",
		Short:     "List the items of a section, newest first",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"blog", "work"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.StringSlice("exclude", nil, "slugs to leave out")
	f.Int("start", 0, "1-indexed first item to keep")
	f.Int("end", 0, "exclusive upper bound, 0 keeps the rest")
	f.Bool("json", false, "print the listing as JSON, as the content API does")
	return cmd
}

func (a *app) runList(cmd *cobra.Command, section string) error {
	ctx := cmd.Context()
	dir := sectionDirs[section]

	items, err := a.lister().List(ctx, os.DirFS(a.conf.ContentDir), dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", section, err)
	}
	selected := content.Select(items, content.Query{
		Exclude: a.conf.Exclude,
		Range:   content.Range{Start: a.conf.Start, End: a.conf.End},
	})

	if a.conf.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(contentapi.ListResponse{
			Section: section,
			Total:   len(items),
			Items:   selected,
		})
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tPUBLISHED\tTITLE")
	for _, it := range selected {
		published := "-"
		if t, ok := it.Metadata.PublishedAt(); ok {
			published = t.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Slug, published, render.DisplayTitle(it))
	}
	return tw.Flush()
}
