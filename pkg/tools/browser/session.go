// Package browser executes validated tool calls against a live Playwright
// session. The executor translates each action kind into Playwright
// operations and reports every outcome as a classified step result; it never
// panics and never lets a driver error escape unclassified.
package browser

import (
	"fmt"
	"io"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Default values for session operations.
const (
	DefaultTimeout        = 30000.0 // milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Session is the narrow surface the executor drives. The production
// implementation wraps a Playwright page; tests substitute fakes.
type Session interface {
	Navigate(url string) error
	Click(selector string) error
	ClickText(text string) error
	Fill(selector, value string) error
	Press(selector, key string) error
	SelectOption(selector, value string) error
	Check(selector string) error
	Scroll(direction string, pixels int) error
	WaitFor(selector string) error
	ReadText(selector string) (string, error)
	Screenshot() ([]byte, error)
	URL() string
	Title() (string, error)
	Close() error
}

// Credentials carries HTTP basic-auth credentials applied at the browser
// context level, so every request the page makes is authenticated.
type Credentials struct {
	Username string
	Password string
}

// Options configures a new browser session.
type Options struct {
	Headless bool

	// Credentials, when non-nil, enables HTTP basic auth for the context.
	Credentials *Credentials

	// ActionTimeout is the default timeout for page operations in
	// milliseconds. Zero means DefaultTimeout.
	ActionTimeout float64

	ViewportWidth  int
	ViewportHeight int
}

// playwrightSession drives a single Chromium page. One session per run; it
// is not safe for concurrent use, matching the loop's one-action-at-a-time
// execution model.
type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// Launch installs and starts Playwright, launches Chromium, and opens a
// fresh page. The caller owns the returned session and must Close it.
func Launch(opts Options) (Session, error) {
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = DefaultTimeout
	}
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.Credentials != nil {
		contextOpts.HttpCredentials = &playwright.HttpCredentials{
			Username: opts.Credentials.Username,
			Password: opts.Credentials.Password,
		}
	}
	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(opts.ActionTimeout)

	return &playwrightSession{
		pw:      pw,
		browser: browser,
		context: context,
		page:    page,
	}, nil
}

func (s *playwrightSession) Navigate(url string) error {
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *playwrightSession) Click(selector string) error {
	return s.page.Locator(selector).First().Click()
}

func (s *playwrightSession) ClickText(text string) error {
	exact := false
	return s.page.GetByText(text, playwright.PageGetByTextOptions{
		Exact: &exact,
	}).First().Click()
}

func (s *playwrightSession) Fill(selector, value string) error {
	return s.page.Locator(selector).First().Fill(value)
}

func (s *playwrightSession) Press(selector, key string) error {
	if selector != "" {
		return s.page.Locator(selector).First().Press(key)
	}
	return s.page.Keyboard().Press(key)
}

func (s *playwrightSession) SelectOption(selector, value string) error {
	loc := s.page.Locator(selector).First()
	// Try by value first; fall back to matching the option label.
	if _, err := loc.SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	}); err == nil {
		return nil
	}
	_, err := loc.SelectOption(playwright.SelectOptionValues{
		Labels: &[]string{value},
	})
	return err
}

func (s *playwrightSession) Check(selector string) error {
	return s.page.Locator(selector).First().Check()
}

func (s *playwrightSession) Scroll(direction string, pixels int) error {
	if direction == "up" {
		pixels = -pixels
	}
	_, err := s.page.Evaluate("window.scrollBy(0, arguments[0])", pixels)
	if err != nil {
		// Older Playwright expression form.
		_, err = s.page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels))
	}
	return err
}

func (s *playwrightSession) WaitFor(selector string) error {
	state := playwright.WaitForSelectorStateVisible
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State: state,
	})
}

func (s *playwrightSession) ReadText(selector string) (string, error) {
	text, err := s.page.Locator(selector).First().TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

func (s *playwrightSession) Screenshot() ([]byte, error) {
	quality := 60
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: &quality,
	})
}

func (s *playwrightSession) URL() string {
	return s.page.URL()
}

func (s *playwrightSession) Title() (string, error) {
	return s.page.Title()
}

// Close tears the whole session down. Errors from individual resources are
// ignored so cleanup always runs to completion.
func (s *playwrightSession) Close() error {
	_ = s.page.Close()
	_ = s.context.Close()
	_ = s.browser.Close()
	if err := s.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// Sleep is a seam for the executor's fixed-duration wait so tests can run
// without real delays.
var Sleep = time.Sleep
