package esic

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/browser"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeSession scripts the remote portal for tests. Behavior hooks are
// optional; unset ones fall back to recording the call.
type fakeSession struct {
	url      string
	page     string
	texts    map[string]string
	options  map[string][]string
	links    int
	cookies  []browser.Cookie
	closed   bool
	navCount int

	clicked []string
	filled  map[string]string

	onNavigate    func(url string)
	onClick       func(id string)
	onClickLink   func(index int)
	onClickInputs func(containerID string)
	onBack        func()
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		texts:   make(map[string]string),
		options: make(map[string][]string),
		filled:  make(map[string]string),
	}
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.navCount++
	f.url = url
	if f.onNavigate != nil {
		f.onNavigate(url)
	}
	return nil
}

func (f *fakeSession) CurrentURL(context.Context) (string, error) { return f.url, nil }
func (f *fakeSession) PageSource(context.Context) (string, error) { return f.page, nil }

func (f *fakeSession) Click(_ context.Context, id string) error {
	f.clicked = append(f.clicked, id)
	if f.onClick != nil {
		f.onClick(id)
	}
	return nil
}

func (f *fakeSession) Fill(_ context.Context, id, text string) error {
	f.filled[id] = text
	return nil
}

func (f *fakeSession) Text(_ context.Context, id string) (string, error) {
	text, ok := f.texts[id]
	if !ok {
		return "", fmt.Errorf("no element #%s", id)
	}
	return text, nil
}

func (f *fakeSession) SelectOption(_ context.Context, selectID, optionText string) error {
	for _, opt := range f.options[selectID] {
		if opt == optionText {
			f.filled[selectID] = optionText
			return nil
		}
	}
	return fmt.Errorf("select #%s has no option %q", selectID, optionText)
}

func (f *fakeSession) OptionTexts(_ context.Context, selectID string) ([]string, error) {
	return f.options[selectID], nil
}

func (f *fakeSession) CountLinks(_ context.Context, _ string) (int, error) {
	return f.links, nil
}

func (f *fakeSession) ClickLink(_ context.Context, _ string, index int) error {
	if f.onClickLink != nil {
		f.onClickLink(index)
	}
	return nil
}

func (f *fakeSession) ClickInputs(_ context.Context, containerID string) error {
	if f.onClickInputs != nil {
		f.onClickInputs(containerID)
	}
	return nil
}

func (f *fakeSession) Back(context.Context) error {
	if f.onBack != nil {
		f.onBack()
	}
	return nil
}

func (f *fakeSession) Cookies(context.Context) ([]browser.Cookie, error) {
	return f.cookies, nil
}

func (f *fakeSession) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	f.cookies = cookies
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}
