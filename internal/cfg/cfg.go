// Package cfg holds the server's flag-driven configuration. Every flag can
// also be supplied through the environment; see FillFromEnv.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aleaurre/portfolio-web/internal/content"
	"github.com/aleaurre/portfolio-web/internal/log"
)

// App is the server configuration.
type App struct {
	// listeners
	HTTPPort         int
	AdminPort        int
	TrustedProxyHops int
	DrainPeriod      time.Duration
	ShutdownTimeout  time.Duration

	// logging
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// observability
	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	// site content
	ContentDir     string
	ContentPattern string
	SiteConfig     string
	BaseURL        string

	// remote bundles
	EnableContentUpdates bool
	ContentSSMParam      string
	ContentS3Bucket      string
	ContentS3Prefix      string
	ContentSigningKeyARN string
	RequireSignedContent bool
	ContentPollInterval  time.Duration
}

// Register binds every App field to fs with its default.
func Register(fs *flag.FlagSet, c *App) {
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "site listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the site whose X-Forwarded-For entries are trusted")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 60*time.Second, "how long readiness fails before listeners close on shutdown")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown budget once draining is over")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "log the wrapped error chain")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the ops port")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server URL")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (X-Scope-OrgID)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export OTLP traces to -otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.ContentDir, "content-dir", "", "serve content from this directory instead of the embedded seed (blog/posts, work/projects, public)")
	fs.StringVar(&c.ContentPattern, "content-pattern", "*.mdx", "glob matched against content file names")
	fs.StringVar(&c.SiteConfig, "site-config", "", "YAML file overriding the embedded site resources")
	fs.StringVar(&c.BaseURL, "base-url", "", "site base URL for canonical links and feeds")

	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", false, "load and refresh content bundles from S3/SSM")
	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "/app/portfolio-web/content/stable/sha256", "SSM parameter holding the active bundle hash")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "bucket holding content bundles")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "portfolio-web/content/bundles", "key prefix for content bundles")
	fs.StringVar(&c.ContentSigningKeyARN, "content-signing-key-arn", "", "KMS key ARN used to verify bundle signatures")
	fs.BoolVar(&c.RequireSignedContent, "require-signed-content", false, "refuse bundles unless -content-signing-key-arn is set")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 30*time.Second, "how often the SSM parameter is polled")
}

// FillFromEnv sets any flag not passed on the command line from the
// environment. Flag "foo-bar" reads PREFIX_FOO_BAR. A flag given on the
// command line always wins; an unparseable env value is reported through
// logf and the flag keeps its previous value.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		val, ok := os.LookupEnv(key)
		switch {
		case !ok:
		case explicit[f.Name]:
			logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, val)
		default:
			prev := f.Value.String()
			if err := fs.Set(f.Name, val); err != nil {
				_ = fs.Set(f.Name, prev)
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// Validate reports every invalid field at once, joined with errors.Join.
func Validate(c App) error {
	var errs []error
	for _, check := range []func(App) []error{
		checkListeners,
		checkLogging,
		checkObservability,
		checkContent,
		checkBundles,
	} {
		errs = append(errs, check(c)...)
	}
	return errors.Join(errs...)
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func checkListeners(c App) (errs []error) {
	if !validPort(c.HTTPPort) {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if !validPort(c.AdminPort) {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..8 (got %d)", c.TrustedProxyHops))
	}
	if c.DrainPeriod < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_PERIOD must not be negative (got %s)", c.DrainPeriod))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive (got %s)", c.ShutdownTimeout))
	}
	return errs
}

func checkLogging(c App) (errs []error) {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}
	return errs
}

func checkObservability(c App) (errs []error) {
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		switch {
		case c.PyroServer == "":
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		case !absoluteURL(c.PyroServer):
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %w", c.OTLPEndpoint, err))
		}
	}
	return errs
}

func checkContent(c App) (errs []error) {
	if c.ContentPattern == "" {
		errs = append(errs, errors.New("CONTENT_PATTERN must not be empty"))
	} else if err := content.ValidatePattern(c.ContentPattern); err != nil {
		errs = append(errs, fmt.Errorf("invalid CONTENT_PATTERN: %w", err))
	}
	if c.BaseURL != "" && !absoluteURL(c.BaseURL) {
		errs = append(errs, fmt.Errorf("BASE_URL must be an absolute URL (got %q)", c.BaseURL))
	}
	if c.ContentDir != "" && c.EnableContentUpdates {
		errs = append(errs, errors.New("CONTENT_DIR and ENABLE_CONTENT_UPDATES are mutually exclusive"))
	}
	return errs
}

func checkBundles(c App) (errs []error) {
	if !c.EnableContentUpdates {
		return nil
	}
	if c.ContentSSMParam == "" {
		errs = append(errs, errors.New("CONTENT_SSM_PARAM is required when ENABLE_CONTENT_UPDATES=true"))
	}
	if c.ContentS3Bucket == "" {
		errs = append(errs, errors.New("CONTENT_S3_BUCKET is required when ENABLE_CONTENT_UPDATES=true"))
	}
	if c.RequireSignedContent && c.ContentSigningKeyARN == "" {
		errs = append(errs, errors.New("CONTENT_SIGNING_KEY_ARN is required when REQUIRE_SIGNED_CONTENT=true"))
	}
	if c.ContentPollInterval < 5*time.Second {
		errs = append(errs, fmt.Errorf("CONTENT_POLL_INTERVAL must be at least 5s (got %s)", c.ContentPollInterval))
	}
	return errs
}
