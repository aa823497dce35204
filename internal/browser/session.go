package browser

import (
	"context"
	"time"
)

// Cookie is a browser cookie in a form that survives a round trip
// through JSON persistence.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// RemoteSession is the capability boundary to the portal. Everything
// the service does remotely goes through these operations, which keeps
// the core logic testable against fakes and the chromedp dependency in
// one place.
type RemoteSession interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the URL of the loaded page.
	CurrentURL(ctx context.Context) (string, error)
	// PageSource returns the full HTML of the loaded page.
	PageSource(ctx context.Context) (string, error)
	// Click clicks the element with the given DOM id.
	Click(ctx context.Context, id string) error
	// Fill clears the element with the given DOM id and types text.
	Fill(ctx context.Context, id, text string) error
	// Text returns the visible text of the element with the given id.
	Text(ctx context.Context, id string) (string, error)
	// SelectOption selects the option whose visible text matches
	// exactly in the select element with the given id.
	SelectOption(ctx context.Context, selectID, optionText string) error
	// OptionTexts returns the visible texts of all options in the
	// select element with the given id, in document order.
	OptionTexts(ctx context.Context, selectID string) ([]string, error)
	// CountLinks returns how many anchor elements the container holds.
	CountLinks(ctx context.Context, containerID string) (int, error)
	// ClickLink clicks the n-th (zero-based) anchor in the container.
	ClickLink(ctx context.Context, containerID string, index int) error
	// ClickInputs clicks every input element in the container.
	ClickInputs(ctx context.Context, containerID string) error
	// Back navigates one step back in history.
	Back(ctx context.Context) error
	// Cookies returns the session's current cookies.
	Cookies(ctx context.Context) ([]Cookie, error)
	// SetCookies installs cookies into the session.
	SetCookies(ctx context.Context, cookies []Cookie) error
	// Close releases the underlying browser.
	Close() error
}
