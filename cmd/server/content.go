package main

import (
	"context"
	"errors"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/aleaurre/portfolio-web/internal/cfg"
	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/cryptoutil"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/metrics"
	"github.com/aleaurre/portfolio-web/internal/resources"
	"github.com/aleaurre/portfolio-web/internal/webassets"
	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// contentStack is the live content plumbing shared by the site and the
// content API.
type contentStack struct {
	manager *content.Manager
	lister  content.Lister
}

// startContent installs the boot snapshot and starts whichever refresh
// path is configured: an fsnotify watch for -content-dir, or the SSM/S3
// bundle watcher. Only a broken -content-dir is fatal; without a seed the
// site stays unready until a bundle arrives.
func startContent(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (*contentStack, error) {
	CL := L.With("component", "content")
	cs := &contentStack{
		manager: content.NewManager(),
		lister:  content.Lister{Pattern: conf.ContentPattern, Logger: CL, Observer: m},
	}
	publish := func(s *content.Snapshot) {
		m.SetContentSnapshot(string(s.Meta.Source), s.Meta.SHA256, s.Meta.Signed, s.LoadedAt)
	}

	snap, err := initialSnapshot(ctx, conf)
	switch {
	case err != nil && conf.ContentDir != "":
		return nil, xerrors.Wrap(err, "load content dir")
	case err != nil:
		CL.Warn(ctx, "no seed content", "error", err.Error())
	default:
		cs.manager.Set(*snap)
		publish(snap)
		CL.Info(ctx, "initial content", "source", snap.Meta.Source, "content_hash", snap.Meta.SHA256)
	}

	if conf.ContentDir != "" {
		if err := watchContentDir(ctx, CL, conf.ContentDir, cs.manager, publish); err != nil {
			CL.Warn(ctx, "content dir watch disabled", "error", err.Error())
		}
	}
	if conf.EnableContentUpdates {
		if err := startBundleUpdates(ctx, CL, conf, cs.manager, m, publish); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// startBundleUpdates loads the current S3 bundle once, synchronously, then
// hands polling to a content.Watcher. A bad first bundle keeps the seed.
func startBundleUpdates(ctx context.Context, L log.Logger, conf cfg.App, mgr *content.Manager, m *metrics.ServerMetrics, publish func(*content.Snapshot)) error {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return xerrors.Wrap(err, "load AWS config")
	}

	var verifier content.SignatureVerifier
	if conf.ContentSigningKeyARN != "" {
		verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.ContentSigningKeyARN)
	}
	loader, err := content.NewBundleLoader(ssm.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), content.BundleLoaderOptions{
		Logger:   L,
		SSMParam: conf.ContentSSMParam,
		S3Bucket: conf.ContentS3Bucket,
		S3Prefix: conf.ContentS3Prefix,
		Verifier: verifier,
	})
	if err != nil {
		return xerrors.Wrap(err, "create bundle loader")
	}

	validation := validationFor(conf)
	snap, err := loader.Load(ctx)
	if err == nil {
		err = content.ValidateSnapshot(ctx, snap, validation)
	}
	if err != nil {
		L.Error(ctx, err, "initial bundle rejected, keeping seed")
	} else {
		mgr.Set(*snap)
		publish(snap)
		L.Info(ctx, "bundle loaded",
			"content_version", snap.Meta.Version,
			"content_hash", snap.Meta.SHA256,
			"signed", snap.Meta.Signed,
		)
	}

	w := content.NewWatcher(&content.WatcherOptions{
		Logger:       L,
		Loader:       loader,
		Manager:      mgr,
		PollInterval: conf.ContentPollInterval,
		Validation:   &validation,
		Metrics:      m,
		OnSwap: func(string, string) {
			if s, ok := mgr.Get(); ok {
				publish(s)
			}
		},
	})
	go w.Run(ctx)
	return nil
}

// validationFor returns the swap checks for the configured file pattern.
func validationFor(conf cfg.App) content.ValidationOptions {
	v := content.DefaultValidationOptions()
	v.Pattern = conf.ContentPattern
	return v
}

// initialSnapshot picks the root served at boot: -content-dir when set,
// otherwise the embedded seed. S3 bundles replace it later if enabled.
func initialSnapshot(ctx context.Context, conf cfg.App) (*content.Snapshot, error) {
	if conf.ContentDir != "" {
		snap, err := content.DiskSnapshot(conf.ContentDir)
		if err != nil {
			return nil, err
		}
		if err := content.ValidateSnapshot(ctx, snap, validationFor(conf)); err != nil {
			return nil, xerrors.Wrapf(err, "validate content dir %s", conf.ContentDir)
		}
		return snap, nil
	}

	seedFS, ok := webassets.SeedSiteFS()
	if !ok {
		return nil, xerrors.New("no embedded seed content")
	}
	return content.NewSnapshot(seedFS, content.SourceSeed, "seed")
}

// watchContentDir restamps the disk snapshot whenever files under root change.
// Pages already read the directory live; this keeps the hash, headers and
// metrics in step with what is on disk.
func watchContentDir(ctx context.Context, L log.Logger, root string, mgr *content.Manager, onSwap func(*content.Snapshot)) error {
	w, err := content.NewDirWatcher(content.DirWatcherOptions{
		Logger: L,
		Root:   root,
		OnChange: func(ctx context.Context, changed []string) {
			snap, err := content.DiskSnapshot(root)
			if err != nil {
				L.Error(ctx, err, "rehash content dir", "root", root)
				return
			}
			prev := mgr.ContentHash()
			mgr.Set(*snap)
			if onSwap != nil {
				onSwap(snap)
			}
			L.Info(ctx, "content dir changed",
				"files", len(changed),
				"old_hash", prev,
				"new_hash", snap.Meta.SHA256,
			)
		},
	})
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			L.Error(ctx, err, "content dir watcher stopped")
		}
	}()
	return nil
}

// loadSite reads the site resources and applies the base URL override.
func loadSite(conf cfg.App) (*resources.Site, error) {
	site, err := resources.Load(conf.SiteConfig)
	if err != nil {
		return nil, err
	}
	if conf.BaseURL != "" {
		return site.WithBaseURL(conf.BaseURL)
	}
	return site, nil
}

// ogFooter is the host name stamped on generated preview cards.
func ogFooter(site *resources.Site) string {
	u, err := url.Parse(site.BaseURL)
	if err != nil || u.Host == "" {
		return site.BaseURL
	}
	return u.Host
}
