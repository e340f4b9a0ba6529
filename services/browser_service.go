package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"jobrunner/config"
)

// stealthInit suppresses the most common automation fingerprints before any
// page script runs.
const stealthInit = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
`

const vendorConnectRetries = 3

// BrowserSession owns one browser and one page for the lifetime of a run.
// It is either a remote vendor session (connected over CDP) or a locally
// launched hardened Chromium; the orchestrator works identically against both.
type BrowserSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	remote  bool

	screenshotDir string
}

// BrowserFactory builds sessions for orchestrator runs.
type BrowserFactory struct {
	cfg config.AppConfig
}

func NewBrowserFactory(cfg config.AppConfig) *BrowserFactory {
	return &BrowserFactory{cfg: cfg}
}

// NewSession connects to the remote-browser vendor when credentials are
// given, retrying a bounded number of times, then falls back to a local
// hardened browser.
func (f *BrowserFactory) NewSession(vendorKey, vendorWSURL string) (*BrowserSession, error) {
	if vendorKey == "" {
		vendorKey = f.cfg.ProxyVendorKey
	}
	if vendorWSURL == "" {
		vendorWSURL = f.cfg.ProxyVendorWSURL
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	if vendorKey != "" && vendorWSURL != "" {
		endpoint := fmt.Sprintf("%s?apiKey=%s&proxies=true", vendorWSURL, vendorKey)
		for attempt := 1; attempt <= vendorConnectRetries; attempt++ {
			browser, err := pw.Chromium.ConnectOverCDP(endpoint)
			if err != nil {
				log.Printf("Vendor browser connect attempt %d/%d failed: %v", attempt, vendorConnectRetries, err)
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			page, err := vendorPage(browser)
			if err != nil {
				browser.Close()
				log.Printf("Vendor browser returned no usable page: %v", err)
				break
			}
			log.Printf("Connected to remote vendor browser")
			return &BrowserSession{pw: pw, browser: browser, page: page, remote: true, screenshotDir: f.cfg.ScreenshotDir}, nil
		}
		log.Printf("Falling back to local browser after vendor connection failure")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.cfg.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-blink-features=AutomationControlled",
			"--disable-extensions",
			"--disable-plugins-discovery",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
		Viewport:  &playwright.Size{Width: 1440, Height: 900},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if err := context.AddInitScript(playwright.Script{Content: playwright.String(stealthInit)}); err != nil {
		log.Printf("Warning: could not install stealth init script: %v", err)
	}

	page, err := context.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &BrowserSession{pw: pw, browser: browser, page: page, screenshotDir: f.cfg.ScreenshotDir}, nil
}

// vendorPage picks up the page the vendor session already has open, or opens
// a fresh one.
func vendorPage(browser playwright.Browser) (playwright.Page, error) {
	contexts := browser.Contexts()
	if len(contexts) > 0 {
		if pages := contexts[0].Pages(); len(pages) > 0 {
			return pages[0], nil
		}
		return contexts[0].NewPage()
	}
	context, err := browser.NewContext()
	if err != nil {
		return nil, err
	}
	return context.NewPage()
}

func (s *BrowserSession) Page() playwright.Page {
	return s.page
}

func (s *BrowserSession) Remote() bool {
	return s.remote
}

// Navigate loads the URL, cycling through progressively looser readiness
// criteria before giving up: networkidle, then load, then domcontentloaded.
func (s *BrowserSession) Navigate(url string) error {
	strategies := []struct {
		state   *playwright.WaitUntilState
		timeout float64
	}{
		{playwright.WaitUntilStateNetworkidle, 30000},
		{playwright.WaitUntilStateLoad, 20000},
		{playwright.WaitUntilStateDomcontentloaded, 15000},
	}

	var lastErr error
	for _, strategy := range strategies {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: strategy.state,
			Timeout:   playwright.Float(strategy.timeout),
		})
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("Navigation with %v readiness failed: %v", *strategy.state, err)
	}
	return fmt.Errorf("navigation failed after all readiness strategies: %w", lastErr)
}

// Screenshot captures the full page and writes it under the screenshot
// directory, returning the file path.
func (s *BrowserSession) Screenshot(label string) (string, error) {
	filename := fmt.Sprintf("%s_%d.png", label, time.Now().UnixNano())
	path := filepath.Join(s.screenshotDir, filename)
	if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}
	return path, nil
}

// ScreenshotBytes captures the full page without writing a file, for the
// vision model.
func (s *BrowserSession) ScreenshotBytes() ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

// Close releases the browser and the Playwright driver. Safe to call on every
// terminal path.
func (s *BrowserSession) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			log.Printf("Error closing browser: %v", err)
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			log.Printf("Error stopping playwright: %v", err)
		}
	}
}
