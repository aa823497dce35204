package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/config"
)

// ChromeSession drives a single headless Chrome tab. The portal keeps
// navigation state per tab, so the session has exactly one owner at a
// time; the coordinator serializes access.
type ChromeSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	allocatorC context.CancelFunc
	navTimeout time.Duration
	logger     *logrus.Logger
}

// NewChromeSession starts a browser and routes downloads into the
// configured directory.
func NewChromeSession(cfg config.BrowserConfig, logger *logrus.Logger) (*ChromeSession, error) {
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser and point downloads at our directory.
	err := chromedp.Run(ctx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(cfg.DownloadDir),
	)
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"component": "browser",
		"headless":  cfg.Headless,
		"downloads": cfg.DownloadDir,
	}).Info("Browser session started")

	return &ChromeSession{
		ctx:        ctx,
		cancel:     cancel,
		allocatorC: allocCancel,
		navTimeout: cfg.NavTimeout,
		logger:     logger,
	}, nil
}

func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Navigate loads the given URL.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the URL of the loaded page.
func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// PageSource returns the full HTML of the loaded page.
func (s *ChromeSession) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

// Click clicks the element with the given DOM id.
func (s *ChromeSession) Click(ctx context.Context, id string) error {
	if err := s.run(ctx, chromedp.Click("#"+id, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click #%s: %w", id, err)
	}
	return nil
}

// Fill clears the element with the given DOM id and types text.
func (s *ChromeSession) Fill(ctx context.Context, id, text string) error {
	err := s.run(ctx,
		chromedp.Clear("#"+id, chromedp.ByQuery),
		chromedp.SendKeys("#"+id, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill #%s: %w", id, err)
	}
	return nil
}

// Text returns the visible text of the element with the given id.
func (s *ChromeSession) Text(ctx context.Context, id string) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text("#"+id, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read text #%s: %w", id, err)
	}
	return text, nil
}

// SelectOption selects an option by its exact visible text.
func (s *ChromeSession) SelectOption(ctx context.Context, selectID, optionText string) error {
	script := fmt.Sprintf(`(function() {
		var sel = document.getElementById(%q);
		if (!sel) return false;
		for (var i = 0; i < sel.options.length; i++) {
			if (sel.options[i].text === %q) {
				sel.selectedIndex = i;
				sel.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, selectID, optionText)
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("select option in #%s: %w", selectID, err)
	}
	if !ok {
		return fmt.Errorf("select #%s has no option %q", selectID, optionText)
	}
	return nil
}

// OptionTexts returns all option texts of a select, in document order.
func (s *ChromeSession) OptionTexts(ctx context.Context, selectID string) ([]string, error) {
	script := fmt.Sprintf(`(function() {
		var sel = document.getElementById(%q);
		if (!sel) return [];
		return Array.prototype.map.call(sel.options, function(o) { return o.text; });
	})()`, selectID)
	var texts []string
	if err := s.run(ctx, chromedp.Evaluate(script, &texts)); err != nil {
		return nil, fmt.Errorf("read options of #%s: %w", selectID, err)
	}
	return texts, nil
}

// CountLinks returns how many anchors the container holds.
func (s *ChromeSession) CountLinks(ctx context.Context, containerID string) (int, error) {
	script := fmt.Sprintf(`(function() {
		var el = document.getElementById(%q);
		return el ? el.getElementsByTagName('a').length : 0;
	})()`, containerID)
	var count int
	if err := s.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("count links in #%s: %w", containerID, err)
	}
	return count, nil
}

// ClickLink clicks the n-th anchor in the container.
func (s *ChromeSession) ClickLink(ctx context.Context, containerID string, index int) error {
	script := fmt.Sprintf(`(function() {
		var el = document.getElementById(%q);
		if (!el) return false;
		var links = el.getElementsByTagName('a');
		if (%d >= links.length) return false;
		links[%d].click();
		return true;
	})()`, containerID, index, index)
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("click link %d in #%s: %w", index, containerID, err)
	}
	if !ok {
		return fmt.Errorf("container #%s has no link %d", containerID, index)
	}
	return nil
}

// ClickInputs clicks every input element in the container. The portal
// renders one download button per attachment, so this triggers all
// downloads for a record.
func (s *ChromeSession) ClickInputs(ctx context.Context, containerID string) error {
	script := fmt.Sprintf(`(function() {
		var el = document.getElementById(%q);
		if (!el) return 0;
		var inputs = el.getElementsByTagName('input');
		for (var i = 0; i < inputs.length; i++) { inputs[i].click(); }
		return inputs.length;
	})()`, containerID)
	var count int
	if err := s.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return fmt.Errorf("click inputs in #%s: %w", containerID, err)
	}
	return nil
}

// Back navigates one step back in history.
func (s *ChromeSession) Back(ctx context.Context) error {
	if err := s.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// fromNetworkCookie converts a CDP cookie. Session cookies report a
// non-positive expiry; they map to a zero Expires so the round trip
// through persistence cannot resurrect them as already expired.
func fromNetworkCookie(c *network.Cookie) Cookie {
	cookie := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if c.Expires > 0 {
		cookie.Expires = time.Unix(int64(c.Expires), 0)
	}
	return cookie
}

// toCookieParam converts a persisted cookie back to its CDP form. A
// zero Expires means a session cookie and stays unset.
func toCookieParam(c Cookie) *network.CookieParam {
	param := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if !c.Expires.IsZero() {
		expires := cdp.TimeSinceEpoch(c.Expires)
		param.Expires = &expires
	}
	return param
}

// Cookies returns the session's current cookies.
func (s *ChromeSession) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]Cookie, len(raw))
	for i, c := range raw {
		cookies[i] = fromNetworkCookie(c)
	}
	return cookies, nil
}

// SetCookies installs cookies into the session.
func (s *ChromeSession) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, len(cookies))
	for i, c := range cookies {
		params[i] = toCookieParam(c)
	}
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return storage.SetCookies(params).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Close releases the browser.
func (s *ChromeSession) Close() error {
	s.cancel()
	s.allocatorC()
	s.logger.WithField("component", "browser").Info("Browser session closed")
	return nil
}
