package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/aleaurre/portfolio-web/internal/build"
	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/render"
	"github.com/aleaurre/portfolio-web/internal/resources"
	"github.com/aleaurre/portfolio-web/internal/sitehandler"
	"github.com/aleaurre/portfolio-web/internal/webassets"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Export the site as static files",
		Long: `build renders every page of the site from the content root into --out:
home, about, the blog and work indexes, each post and project, sitemap.xml,
rss.xml and 404.html. Files under public/ and the embedded stylesheet are
copied alongside.

With --watch it keeps running and rebuilds after every change under the
content root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("out", "dist", "output directory")
	f.Bool("clean", false, "remove the output directory first")
	f.StringSlice("skip", nil, "doublestar patterns of public/ files not to copy")
	f.Int("concurrency", 4, "pages rendered in parallel")
	f.Bool("watch", false, "rebuild on content changes until interrupted")
	f.String("site-config", "", "YAML file overriding the embedded site resources")
	f.String("base-url", "", "override the site base URL")
	return cmd
}

func (a *app) runBuild(ctx context.Context) error {
	rebuild := func(ctx context.Context) (*build.Report, error) {
		r, err := a.export(ctx)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(a.out, "exported %d pages and %d files (%s) to %s in %s\n",
			r.Pages, r.Files, humanize.Bytes(uint64(r.Bytes)), a.conf.Out, r.Duration.Round(time.Millisecond))
		return r, nil
	}

	if !a.conf.Watch {
		_, err := rebuild(ctx)
		return err
	}
	err := build.Watch(ctx, build.WatchOptions{
		Logger:  a.logger,
		Root:    a.conf.ContentDir,
		Rebuild: rebuild,
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// export renders the content root once. Everything is rebuilt per call so a
// watch cycle picks up new files and site resources.
func (a *app) export(ctx context.Context) (*build.Report, error) {
	snap, err := content.DiskSnapshot(a.conf.ContentDir)
	if err != nil {
		return nil, err
	}
	v := content.DefaultValidationOptions()
	v.Pattern = a.conf.Pattern
	if err := content.ValidateSnapshot(ctx, snap, v); err != nil {
		return nil, fmt.Errorf("content root %s: %w", a.conf.ContentDir, err)
	}

	site, err := resources.Load(a.conf.SiteConfig)
	if err != nil {
		return nil, err
	}
	if a.conf.BaseURL != "" {
		if site, err = site.WithBaseURL(a.conf.BaseURL); err != nil {
			return nil, err
		}
	}
	renderer, err := render.New(site)
	if err != nil {
		return nil, err
	}

	mgr := content.NewManager()
	mgr.Set(*snap)
	h, err := sitehandler.New(sitehandler.Options{
		Logger:     a.logger,
		Content:    mgr,
		Renderer:   renderer,
		Lister:     a.lister(),
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		return nil, err
	}
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	return build.Export(ctx, build.Options{
		Logger:      a.logger,
		Handler:     router,
		Snapshot:    snap,
		Lister:      a.lister(),
		OutDir:      a.conf.Out,
		Clean:       a.conf.Clean,
		Exclude:     a.conf.Skip,
		Concurrency: a.conf.Concurrency,
	})
}
