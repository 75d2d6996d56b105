package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/juju/ratelimit"
)

// Options control how RodDownloader drives the portal
type Options struct {
	PortalURL      string
	InputSelector  string
	ButtonXPath    string
	ElementTimeout time.Duration
	NavTimeout     time.Duration // bound on navigation and page load
	PageSettle     time.Duration // wait after the page loads
	InputSettle    time.Duration // wait after typing and after blur
	ClickSettle    time.Duration // wait after clicking download
	PollInterval   time.Duration
	PollChecks     int
	SkipExisting   bool
	NavRate        float64 // portal navigations per second, 0 = unlimited
}

// DefaultOptions returns the settings that work against the vsix portal
func DefaultOptions() Options {
	return Options{
		PortalURL:      "https://vsix.2i.gs/",
		InputSelector:  ".css-1x5jdmq",
		ButtonXPath:    "//button[contains(text(), '下载')]",
		ElementTimeout: 10 * time.Second,
		NavTimeout:     30 * time.Second,
		PageSettle:     3 * time.Second,
		InputSettle:    1 * time.Second,
		ClickSettle:    5 * time.Second,
		PollInterval:   2 * time.Second,
		PollChecks:     30,
	}
}

// RodDownloader fetches extension packages by driving a headless browser
type RodDownloader struct {
	sessions *SessionManager
	opts     Options
	bucket   *ratelimit.Bucket
	logger   *log.Logger
}

// NewRodDownloader creates a RodDownloader. Every attempt gets its own
// session from sessions.
func NewRodDownloader(sessions *SessionManager, opts Options, logger *log.Logger) *RodDownloader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	d := &RodDownloader{
		sessions: sessions,
		opts:     opts,
		logger:   logger,
	}
	if opts.NavRate > 0 {
		d.bucket = ratelimit.NewBucketWithRate(opts.NavRate, 1)
	}
	return d
}

// CheckEnvironment verifies that a browser session can be started at all
func (d *RodDownloader) CheckEnvironment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Println("Checking browser environment...")
	return d.sessions.Use("", func(*Session) error {
		return nil
	})
}

// Download runs one attempt for item and returns the artifact file name.
// If the artifact does not appear in time the error wraps ErrArtifactNotFound.
func (d *RodDownloader) Download(ctx context.Context, item, outputDir string) (string, error) {
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output directory: %w", err)
	}

	if d.opts.SkipExisting {
		name, ok, err := FindArtifact(absOut, item)
		if err == nil && ok {
			d.logger.Printf("Artifact already present for %s: %s\n", item, name)
			return name, nil
		}
	}

	var file string
	err = d.sessions.Use(item, func(s *Session) error {
		var err error
		file, err = d.attempt(ctx, s, item, absOut)
		return err
	})
	if err != nil {
		return "", err
	}
	return file, nil
}

func (d *RodDownloader) attempt(ctx context.Context, s *Session, item, absOut string) (string, error) {
	if d.bucket != nil {
		d.bucket.Wait(1)
	}

	err := proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: absOut,
	}.Call(s.Browser)
	if err != nil {
		return "", fmt.Errorf("failed to enable downloads: %w", err)
	}

	page, err := s.Browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	nav := navPage(page, d.opts.NavTimeout)
	if err := nav.Navigate(d.opts.PortalURL); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	if err := nav.WaitLoad(); err != nil {
		return "", fmt.Errorf("failed to wait for page load: %w", err)
	}
	d.logger.Printf("%s: portal page opened\n", item)
	if err := sleep(ctx, d.opts.PageSettle); err != nil {
		return "", err
	}

	input, err := page.Timeout(d.opts.ElementTimeout).Element(d.opts.InputSelector)
	if err != nil {
		return "", fmt.Errorf("failed to find input box: %w", err)
	}
	if err := input.SelectAllText(); err != nil {
		return "", fmt.Errorf("failed to clear input box: %w", err)
	}
	if err := input.Input(item); err != nil {
		return "", fmt.Errorf("failed to type extension id: %w", err)
	}
	d.logger.Printf("%s: extension id entered\n", item)
	if err := sleep(ctx, d.opts.InputSettle); err != nil {
		return "", err
	}

	// The portal resolves the id on blur, before the button is usable.
	if err := input.Blur(); err != nil {
		return "", fmt.Errorf("failed to blur input box: %w", err)
	}
	if err := sleep(ctx, d.opts.InputSettle); err != nil {
		return "", err
	}

	button, err := page.Timeout(d.opts.ElementTimeout).ElementX(d.opts.ButtonXPath)
	if err != nil {
		return "", fmt.Errorf("failed to find download button: %w", err)
	}
	if _, err := button.Eval(`() => this.click()`); err != nil {
		return "", fmt.Errorf("failed to click download button: %w", err)
	}
	d.logger.Printf("%s: download button clicked\n", item)
	if err := sleep(ctx, d.opts.ClickSettle); err != nil {
		return "", err
	}

	return WaitForArtifact(ctx, absOut, item, d.opts.PollInterval, d.opts.PollChecks)
}

// navPage bounds page loads by timeout. A non-positive timeout leaves the
// page unbounded.
func navPage(page *rod.Page, timeout time.Duration) *rod.Page {
	if timeout <= 0 {
		return page
	}
	return page.Timeout(timeout)
}

// LaunchChrome returns a LaunchFunc that starts a Chrome/Chromium process
// with the given user data directory. An empty chromeBin falls back to the
// usual install locations.
func LaunchChrome(headless bool, chromeBin string) LaunchFunc {
	return func(userDataDir string) (*rod.Browser, func() error, error) {
		l := launcher.New().
			Headless(headless).
			Set("disable-blink-features", "AutomationControlled").
			NoSandbox(true).
			Leakless(false). // Disable leakless to avoid antivirus issues
			UserDataDir(userDataDir).
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("no-first-run").
			Set("no-default-browser-check").
			Set("disable-extensions").
			Set("disable-background-timer-throttling").
			Set("disable-renderer-backgrounding").
			Set("disable-backgrounding-occluded-windows").
			Set("disable-breakpad").
			Set("disable-default-apps").
			Set("disable-popup-blocking").
			Set("disable-sync").
			Set("disable-translate").
			Set("mute-audio").
			Set("use-mock-keychain").
			Set("disable-features", "TranslateUI,DownloadBubble")

		bin := chromeBin
		if bin == "" {
			bin = findChrome()
		}
		if bin != "" {
			l = l.Bin(bin)
		}

		browserURL, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to launch browser: %w\n\nNote: On Linux, you may need to install Chromium dependencies:\n  apt-get update && apt-get install -y chromium chromium-sandbox || yum install -y chromium", err)
		}

		browser := rod.New().ControlURL(browserURL)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
		}

		closeFn := func() error {
			err := browser.Close()
			l.Kill()
			l.Cleanup()
			return err
		}
		return browser, closeFn, nil
	}
}

// findChrome returns a system Chrome binary, or "" to let rod download one
func findChrome() string {
	paths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	}
	if username := os.Getenv("USERNAME"); username != "" {
		paths = append(paths, `C:\Users\`+username+`\AppData\Local\Google\Chrome\Application\chrome.exe`)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
