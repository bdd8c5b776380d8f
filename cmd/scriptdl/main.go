// Command scriptdl downloads a script from the online script reader and
// saves it as a PDF.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"

	"github.com/Sternrassler/script-reader-dl/pkg/assembler"
	"github.com/Sternrassler/script-reader-dl/pkg/logging"
	"github.com/Sternrassler/script-reader-dl/pkg/metrics"
	"github.com/Sternrassler/script-reader-dl/pkg/pagination"
	"github.com/Sternrassler/script-reader-dl/pkg/pipeline"
	"github.com/Sternrassler/script-reader-dl/pkg/reader"
	"github.com/Sternrassler/script-reader-dl/pkg/session"
)

var version = "0.1.0"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type args struct {
	Email        string `arg:"-e,--email,env:EMAIL" help:"contact e-mail address to which reader access was given" placeholder:"ADDRESS"`
	AccessCode   string `arg:"-c,--access-code,env:ACCESS_CODE" help:"access code provided with the license" placeholder:"CODE"`
	SessionToken string `arg:"--session-token,env:SESSION_TOKEN" help:"pre-captured session token; skips browser login (also read from SESSION_VARS)" placeholder:"TOKEN"`
	Output       string `arg:"-o,--output,required,env:OUTPUT" help:"path of the PDF to write" placeholder:"FILE"`
	MaxPages     *int   `arg:"--max-pages,env:MAX_PAGES" help:"download at most this many pages" placeholder:"N"`
	Concurrency  int    `arg:"--concurrency,env:CONCURRENCY" default:"20" help:"maximum concurrent page requests; 1 downloads sequentially"`
	DumpDir      string `arg:"--dump-dir,env:DUMP_DIR" help:"also write every page image into this directory" placeholder:"DIR"`

	BaseURL        string        `arg:"--base-url,env:BASE_URL" default:"http://ep.mylines.com" help:"reader service base URL"`
	RequestTimeout time.Duration `arg:"--request-timeout,env:REQUEST_TIMEOUT" default:"60s" help:"timeout of a single reader request"`

	LoginURL        string        `arg:"--login-url,env:LOGIN_URL" default:"http://ep.mylines.com/" help:"reader login page"`
	ChromePath      string        `arg:"--chrome-path,env:CHROME_PATH" help:"Chrome or Chromium executable used for login" placeholder:"PATH"`
	RemoteBrowser   string        `arg:"--remote-browser,env:REMOTE_BROWSER" help:"DevTools URL of a running browser, e.g. ws://127.0.0.1:9222" placeholder:"URL"`
	NoSandbox       bool          `arg:"--no-sandbox,env:NO_SANDBOX" help:"disable the Chrome sandbox (containers)"`
	DownloadBrowser bool          `arg:"--download-browser,env:DOWNLOAD_BROWSER" help:"download a Chromium build if no browser is configured"`
	LoginTimeout    time.Duration `arg:"--login-timeout,env:LOGIN_TIMEOUT" default:"60s" help:"timeout of the browser login"`

	LogLevel    string `arg:"--log-level,env:LOG_LEVEL" default:"info" help:"debug, info, warn, error or disabled"`
	LogPretty   bool   `arg:"--log-pretty,env:LOG_PRETTY" help:"human-readable log output"`
	Quiet       bool   `arg:"-q,--quiet,env:QUIET" help:"do not show progress bars"`
	MetricsFile string `arg:"--metrics-file,env:METRICS_FILE" help:"write Prometheus metrics to this file when done" placeholder:"FILE"`
}

func (args) Description() string {
	return "Download a script from the online script reader and save it as a PDF."
}

func (args) Epilogue() string {
	return "Every flag can also be set through a SCRIPTDL_ environment variable, e.g. SCRIPTDL_OUTPUT."
}

func (args) Version() string {
	return "scriptdl " + version
}

// validate checks the combinations go-arg cannot express.
func (a *args) validate() error {
	if a.SessionToken == "" && (a.Email == "" || a.AccessCode == "") {
		return errors.New("either --session-token or both --email and --access-code are required")
	}
	if a.Concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1 (got %d)", a.Concurrency)
	}
	if a.MaxPages != nil && *a.MaxPages <= 0 {
		return fmt.Errorf("--max-pages must be positive (got %d)", *a.MaxPages)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	var a args
	p, err := arg.NewParser(arg.Config{
		Program:   "scriptdl",
		EnvPrefix: "SCRIPTDL_",
		Out:       stderr,
		Exit:      func(int) {},
	}, &a)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if err := p.Parse(argv); err != nil {
		switch {
		case errors.Is(err, arg.ErrHelp):
			p.WriteHelp(stdout)
			return exitOK
		case errors.Is(err, arg.ErrVersion):
			fmt.Fprintln(stdout, a.Version())
			return exitOK
		}
		return usageError(p, stderr, err)
	}

	// SESSION_VARS is the unprefixed fallback for the token.
	if a.SessionToken == "" {
		a.SessionToken = strings.TrimSpace(os.Getenv("SESSION_VARS"))
	}
	if err := a.validate(); err != nil {
		return usageError(p, stderr, err)
	}

	level, err := logging.ParseLevel(a.LogLevel)
	if err != nil {
		return usageError(p, stderr, err)
	}
	logging.Setup(logging.Config{Level: level, Pretty: a.LogPretty, Output: stderr})
	logger := logging.NewLogger(logging.ComponentCLI)

	result, err := download(ctx, &a, stderr)

	if a.MetricsFile != "" {
		if merr := metrics.WriteTextfile(a.MetricsFile); merr != nil {
			logger.Warn().Err(merr).Str("output", a.MetricsFile).Msg("Failed to write metrics")
		}
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, pagination.ErrInvalidArgument) {
			return exitUsage
		}
		return exitError
	}

	name := result.ScriptName
	if name == "" {
		name = fmt.Sprintf("script %d", result.ScriptID)
	}
	fmt.Fprintf(stdout, "Saved %d pages of %q to %s (%s)\n",
		result.PDFPages, name, result.OutputPath, result.Duration.Round(time.Millisecond))

	return exitOK
}

func usageError(p *arg.Parser, stderr io.Writer, err error) int {
	p.WriteUsage(stderr)
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitUsage
}

func download(ctx context.Context, a *args, stderr io.Writer) (*pipeline.Result, error) {
	readerCfg := reader.DefaultConfig()
	readerCfg.BaseURL = a.BaseURL
	readerCfg.UserAgent = "scriptdl/" + version
	readerCfg.Timeout = a.RequestTimeout

	client, err := reader.New(readerCfg)
	if err != nil {
		return nil, err
	}

	provider, err := sessionProvider(a)
	if err != nil {
		return nil, err
	}

	var observer pipeline.Observer = pipeline.NopObserver{}
	if !a.Quiet {
		bar := pipeline.NewProgressBar(stderr)
		defer bar.Close()
		observer = bar
	}

	cfg := pipeline.DefaultConfig()
	cfg.Pagination.MaxConcurrency = a.Concurrency
	cfg.Assembler = assembler.DefaultConfig()

	return pipeline.New(provider, client, cfg, observer).Run(ctx, pipeline.Options{
		OutputPath: a.Output,
		MaxPages:   a.MaxPages,
		DumpDir:    a.DumpDir,
	})
}

func sessionProvider(a *args) (session.Provider, error) {
	if a.SessionToken != "" {
		return session.Static(a.SessionToken), nil
	}

	cfg := session.DefaultBrowserConfig()
	cfg.LoginURL = a.LoginURL
	cfg.Email = a.Email
	cfg.AccessCode = a.AccessCode
	cfg.ChromePath = a.ChromePath
	cfg.RemoteURL = a.RemoteBrowser
	cfg.NoSandbox = a.NoSandbox
	cfg.DownloadBrowser = a.DownloadBrowser
	cfg.Timeout = a.LoginTimeout

	return session.NewBrowser(cfg)
}
