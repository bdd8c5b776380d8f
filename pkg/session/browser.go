package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/script-reader-dl/pkg/logging"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"
)

// DefaultLoginURL is the reader's login page.
const DefaultLoginURL = "http://ep.mylines.com/"

// BrowserConfig configures browser login.
type BrowserConfig struct {
	LoginURL   string
	Email      string
	AccessCode string

	// CSS selectors on the login page.
	EmailSelector      string
	AccessCodeSelector string
	SubmitSelector     string
	// TokenSelector matches the element holding the session token after
	// login. Its value is read for form fields, its text otherwise.
	TokenSelector string

	// ChromePath overrides the browser executable.
	ChromePath string
	// RemoteURL attaches to a running browser's DevTools endpoint instead of
	// starting one, e.g. ws://127.0.0.1:9222.
	RemoteURL string
	NoSandbox bool
	// DownloadBrowser fetches a Chromium build when ChromePath is empty.
	DownloadBrowser bool

	// Timeout bounds the whole login. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// DefaultBrowserConfig returns the selectors of the reader's login form.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		LoginURL:           DefaultLoginURL,
		EmailSelector:      "#txtEmail",
		AccessCodeSelector: "#txtAccessCode",
		SubmitSelector:     "#btnLogin",
		TokenSelector:      "#sessionVars",
		Timeout:            60 * time.Second,
	}
}

// Browser logs into the reader with a headless Chrome and scrapes the token.
type Browser struct {
	config BrowserConfig
	logger zerolog.Logger
}

// NewBrowser creates a browser provider. Unset selectors and URL fall back
// to DefaultBrowserConfig.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	if config.Email == "" || config.AccessCode == "" {
		return nil, ErrCredentialsRequired
	}

	defaults := DefaultBrowserConfig()
	if config.LoginURL == "" {
		config.LoginURL = defaults.LoginURL
	}
	if config.EmailSelector == "" {
		config.EmailSelector = defaults.EmailSelector
	}
	if config.AccessCodeSelector == "" {
		config.AccessCodeSelector = defaults.AccessCodeSelector
	}
	if config.SubmitSelector == "" {
		config.SubmitSelector = defaults.SubmitSelector
	}
	if config.TokenSelector == "" {
		config.TokenSelector = defaults.TokenSelector
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}

	return &Browser{
		config: config,
		logger: logging.NewLogger(logging.ComponentSession),
	}, nil
}

// Token starts (or attaches to) a browser, submits the login form and
// returns the token found under TokenSelector.
func (b *Browser) Token(ctx context.Context) (string, error) {
	start := time.Now()

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	allocCtx, allocCancel, err := b.allocator(ctx)
	if err != nil {
		return "", err
	}
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	b.logger.Debug().Str("url", b.config.LoginURL).Msg("Opening login page")

	var raw string
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(b.config.LoginURL),
		chromedp.WaitVisible(b.config.EmailSelector, chromedp.ByQuery),
		chromedp.SendKeys(b.config.EmailSelector, b.config.Email, chromedp.ByQuery),
		chromedp.SendKeys(b.config.AccessCodeSelector, b.config.AccessCode, chromedp.ByQuery),
		chromedp.Click(b.config.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitReady(b.config.TokenSelector, chromedp.ByQuery),
		chromedp.Evaluate(tokenScript(b.config.TokenSelector), &raw),
	)
	if err != nil {
		return "", fmt.Errorf("browser login: %w", err)
	}

	token := strings.TrimSpace(raw)
	if token == "" {
		return "", fmt.Errorf("browser login: %w", ErrEmptyToken)
	}

	b.logger.Info().
		Dur("duration", time.Since(start)).
		Msg("Session token acquired")

	return token, nil
}

// tokenScript reads the value of a form field or the text of any other element.
func tokenScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "";
		return String(el.value ?? el.textContent ?? "");
	})()`, quoted)
}

func (b *Browser) allocator(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if b.config.RemoteURL != "" {
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, b.config.RemoteURL)
		return allocCtx, cancel, nil
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
	)

	chromePath := b.config.ChromePath
	if chromePath == "" && b.config.DownloadBrowser {
		path, err := resolveBrowser()
		if err != nil {
			return nil, nil, err
		}
		chromePath = path
	}
	if chromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromePath))
	}
	if b.config.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	return allocCtx, cancel, nil
}

// resolveBrowser downloads a Chromium build into rod's cache if it is not
// already there and returns the executable path.
func resolveBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("download browser: %w", err)
	}
	return path, nil
}
