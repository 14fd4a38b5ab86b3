package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
	"github.com/aleaurre/portfolio-web/internal/publish"
	"github.com/aleaurre/portfolio-web/internal/version"
)

// settings is the merged view of flags, PORTFOLIOCTL_* env and portfolioctl.yaml.
// Keys match the flag names.
type settings struct {
	ContentDir string `mapstructure:"content-dir"`
	Pattern    string `mapstructure:"pattern"`
	SiteConfig string `mapstructure:"site-config"`
	BaseURL    string `mapstructure:"base-url"`
	LogLevel   string `mapstructure:"log-level"`
	LogJSON    bool   `mapstructure:"log-json"`

	// list
	Exclude []string `mapstructure:"exclude"`
	Start   int      `mapstructure:"start"`
	End     int      `mapstructure:"end"`
	JSON    bool     `mapstructure:"json"`

	// build
	Out         string   `mapstructure:"out"`
	Clean       bool     `mapstructure:"clean"`
	Skip        []string `mapstructure:"skip"`
	Concurrency int      `mapstructure:"concurrency"`
	Watch       bool     `mapstructure:"watch"`

	// publish
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	SSMParam      string `mapstructure:"ssm-param"`
	SigningKeyARN string `mapstructure:"signing-key-arn"`
	Version       string `mapstructure:"bundle-version"`
	DryRun        bool   `mapstructure:"dry-run"`
}

// publishClients builds the AWS clients publish needs. signer is nil when no
// signing key is configured.
type publishClients func(ctx context.Context, conf settings) (publish.S3API, publish.SSMAPI, publish.Signer, error)

type app struct {
	out    io.Writer
	errOut io.Writer

	cfgFile string
	conf    settings
	logger  log.Logger

	newPublishClients publishClients
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:               out,
		errOut:            errOut,
		logger:            log.Nop(),
		newPublishClients: awsPublishClients,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "portfolioctl",
		Short: "Manage portfolio content: list it, export the site, publish bundles",
		Long: `portfolioctl works on a local content root laid out as the server expects:

  blog/posts/*.mdx      blog posts
  work/projects/*.mdx   work projects
  public/               static files served as-is

Settings come from flags, PORTFOLIOCTL_* environment variables and
portfolioctl.yaml in the working directory, in that order of precedence.`,
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./portfolioctl.yaml)")
	pf.String("content-dir", "content", "content root directory")
	pf.String("pattern", content.DefaultPattern, "glob matched against content file names")
	pf.String("log-level", "info", "debug|info|warn|error")
	pf.Bool("log-json", false, "JSON logs instead of text")

	root.AddCommand(
		newListCmd(a),
		newBuildCmd(a),
		newPublishCmd(a),
		newVersionCmd(a),
	)
	return root
}

// initialize merges config sources for the command being run and sets up logging.
func (a *app) initialize(cmd *cobra.Command) error {
	v := viper.New()

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("portfolioctl")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PORTFOLIOCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || a.cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&a.conf); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := content.ValidatePattern(a.conf.Pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	lvl, err := log.ParseLevel(a.conf.LogLevel)
	if err != nil {
		return err
	}
	l, err := log.New(log.Options{
		App:        version.AppName,
		Component:  "cli",
		Version:    version.Get().Version,
		Level:      lvl,
		JsonFormat: a.conf.LogJSON,
		Writer:     a.errOut,
	})
	if err != nil {
		return err
	}
	a.logger = l.With("command", cmd.Name())
	if used := v.ConfigFileUsed(); used != "" {
		a.logger.Debug(cmd.Context(), "using config file", "path", used)
	}
	return nil
}

func (a *app) lister() content.Lister {
	return content.Lister{Pattern: a.conf.Pattern, Logger: a.logger}
}
