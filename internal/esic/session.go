package esic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/browser"
	"github.com/esiclivre/esic-api/internal/config"
)

// ErrLoginNeeded indicates the portal bounced a protected view to the
// login page. The coordinator reacts by running the login flow again;
// nothing else handles it.
var ErrLoginNeeded = errors.New("login needed")

// Portal paths and element ids for login and submission.
const (
	registerPath = "/registrar_pedido_v2.aspx"
	consultPath  = "/consultar_pedido_v2.aspx"

	emailFieldID     = "ctl00_MainContent_txt_email"
	passwordFieldID  = "ctl00_MainContent_txt_senha"
	challengeFieldID = "ctl00_MainContent_txtValorCaptcha"
	loginButtonID    = "ctl00_MainContent_btnEnviar"

	orgaoSelectID     = "ctl00_MainContent_ddl_orgao"
	descriptionID     = "ctl00_MainContent_txt_descricao_solicitacao"
	disclosureRadioID = "ctl00_MainContent_rbdSim"
	submitButtonID    = "ctl00_MainContent_btnEnviarAntes"

	protocolLabelID = "ctl00_MainContent_lbl_protocolo_confirmar"
	deadlineLabelID = "ctl00_MainContent_lbl_prazo_atendimento_confirmar"
)

// AnswerSource supplies an externally provided challenge answer, if
// one is pending. Taking the answer consumes it.
type AnswerSource interface {
	TakeAnswer() string
}

// Portal manages the authenticated session and the operations that
// need one. It is not safe for concurrent use; the coordinator owns
// it.
type Portal struct {
	session browser.RemoteSession
	solver  *Solver
	answers AnswerSource
	cfg     config.PortalConfig

	maxLoginAttempts int
	loggedIn         bool
	triedCookies     bool
	logger           *logrus.Logger
}

// NewPortal creates a portal bound to a session.
func NewPortal(session browser.RemoteSession, solver *Solver, answers AnswerSource, cfg config.PortalConfig, maxLoginAttempts int, logger *logrus.Logger) *Portal {
	return &Portal{
		session:          session,
		solver:           solver,
		answers:          answers,
		cfg:              cfg,
		maxLoginAttempts: maxLoginAttempts,
		logger:           logger,
	}
}

// LoggedIn reports whether the last login attempt succeeded.
func (p *Portal) LoggedIn() bool { return p.loggedIn }

// Reset drops the logged-in flag so the next EnsureSession runs the
// full login flow.
func (p *Portal) Reset() { p.loggedIn = false }

// EnsureSession establishes an authenticated session. Saved cookies
// are replayed once per process; after that every attempt solves the
// challenge. An externally supplied answer takes precedence over the
// solver for one attempt.
func (p *Portal) EnsureSession(ctx context.Context) error {
	if p.loggedIn {
		return nil
	}

	if !p.triedCookies {
		p.triedCookies = true
		if err := p.loginWithCookies(ctx); err != nil {
			return err
		}
		if p.loggedIn {
			return nil
		}
	}

	return p.loginWithChallenge(ctx)
}

// loginWithCookies replays persisted cookies and checks whether the
// portal still honors them.
func (p *Portal) loginWithCookies(ctx context.Context) error {
	cookies, err := p.loadCookies()
	if err != nil || len(cookies) == 0 {
		return nil
	}

	// A page on the portal's domain must be loaded before cookies can
	// be installed for it.
	if err := p.session.Navigate(ctx, p.cfg.BaseURL+consultPath); err != nil {
		return err
	}
	if err := p.session.SetCookies(ctx, cookies); err != nil {
		return err
	}
	if err := p.session.Navigate(ctx, p.cfg.BaseURL+consultPath); err != nil {
		return err
	}

	atLogin, err := p.atLoginPage(ctx)
	if err != nil {
		return err
	}
	if !atLogin {
		p.loggedIn = true
		p.logger.WithField("component", "session").Info("Saved cookies still valid")
	}
	return nil
}

// loginWithChallenge runs the credential + challenge flow until the
// portal lets us through or the attempt budget runs out.
func (p *Portal) loginWithChallenge(ctx context.Context) error {
	for attempt := 1; attempt <= p.maxLoginAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.gotoLogin(ctx); err != nil {
			return err
		}

		answer := ""
		if p.answers != nil {
			answer = p.answers.TakeAnswer()
		}
		if answer == "" {
			var err error
			answer, err = p.solver.Solve(ctx)
			if err != nil {
				return fmt.Errorf("solve challenge: %w", err)
			}
			// Solving navigated away from the login form.
			if err := p.gotoLogin(ctx); err != nil {
				return err
			}
		}

		p.logger.WithFields(logrus.Fields{
			"component": "session",
			"attempt":   attempt,
		}).Info("Attempting login")

		if err := p.submitLogin(ctx, answer); err != nil {
			return err
		}

		atLogin, err := p.atLoginPage(ctx)
		if err != nil {
			return err
		}
		if !atLogin {
			p.loggedIn = true
			p.logger.WithField("component", "session").Info("Logged in")
			if err := p.saveCookies(ctx); err != nil {
				p.logger.WithField("component", "session").WithError(err).Warn("Could not persist cookies")
			}
			return nil
		}
	}
	return fmt.Errorf("login failed after %d attempts", p.maxLoginAttempts)
}

func (p *Portal) submitLogin(ctx context.Context, answer string) error {
	fields := map[string]string{
		emailFieldID:     p.cfg.Email,
		passwordFieldID:  p.cfg.Password,
		challengeFieldID: answer,
	}
	for id, value := range fields {
		if err := p.session.Fill(ctx, id, value); err != nil {
			return err
		}
	}
	return p.session.Click(ctx, loginButtonID)
}

func (p *Portal) gotoLogin(ctx context.Context) error {
	atLogin, err := p.atLoginPage(ctx)
	if err != nil {
		return err
	}
	if atLogin {
		return nil
	}
	return p.session.Navigate(ctx, p.cfg.BaseURL+loginPath)
}

func (p *Portal) atLoginPage(ctx context.Context) (bool, error) {
	url, err := p.session.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(url, p.cfg.BaseURL+loginPath), nil
}

// checkLoginNeeded turns a bounce to the login page into
// ErrLoginNeeded and drops the logged-in flag.
func (p *Portal) checkLoginNeeded(ctx context.Context) error {
	atLogin, err := p.atLoginPage(ctx)
	if err != nil {
		return err
	}
	if atLogin {
		p.loggedIn = false
		return ErrLoginNeeded
	}
	return nil
}

// GotoConsultPedidos opens the pedido listing view.
func (p *Portal) GotoConsultPedidos(ctx context.Context) error {
	if err := p.session.Navigate(ctx, p.cfg.BaseURL+consultPath); err != nil {
		return err
	}
	return p.checkLoginNeeded(ctx)
}

// PostPedido submits an information request and returns the assigned
// protocol and the portal's answer deadline.
func (p *Portal) PostPedido(ctx context.Context, orgao, text string) (int, time.Time, error) {
	if err := p.session.Navigate(ctx, p.cfg.BaseURL+registerPath); err != nil {
		return 0, time.Time{}, err
	}
	if err := p.checkLoginNeeded(ctx); err != nil {
		return 0, time.Time{}, err
	}

	if err := p.session.SelectOption(ctx, orgaoSelectID, orgao); err != nil {
		return 0, time.Time{}, err
	}
	if err := p.session.Fill(ctx, descriptionID, text); err != nil {
		return 0, time.Time{}, err
	}
	// Authorize public disclosure of the request.
	if err := p.session.Click(ctx, disclosureRadioID); err != nil {
		return 0, time.Time{}, err
	}
	if err := p.session.Click(ctx, submitButtonID); err != nil {
		return 0, time.Time{}, err
	}
	// The session can expire right at submit time; a bounce to the
	// login view must surface as ErrLoginNeeded, not a read failure on
	// the confirmation labels.
	if err := p.checkLoginNeeded(ctx); err != nil {
		return 0, time.Time{}, err
	}

	protocolText, err := p.session.Text(ctx, protocolLabelID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read protocol: %w", err)
	}
	protocol, err := strconv.Atoi(strings.TrimSpace(protocolText))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse protocol %q: %w", protocolText, err)
	}

	deadlineText, err := p.session.Text(ctx, deadlineLabelID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read deadline: %w", err)
	}
	deadline, err := time.Parse("02/01/2006", strings.TrimSpace(deadlineText))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse deadline %q: %w", deadlineText, err)
	}

	p.logger.WithFields(logrus.Fields{
		"component": "session",
		"protocol":  protocol,
	}).Info("Pedido submitted")
	return protocol, deadline, nil
}

// ListOrgaos reads the agency names from the submission form's select,
// skipping the leading placeholder option.
func (p *Portal) ListOrgaos(ctx context.Context) ([]string, error) {
	if err := p.session.Navigate(ctx, p.cfg.BaseURL+registerPath); err != nil {
		return nil, err
	}
	if err := p.checkLoginNeeded(ctx); err != nil {
		return nil, err
	}

	options, err := p.session.OptionTexts(ctx, orgaoSelectID)
	if err != nil {
		return nil, err
	}
	if len(options) <= 1 {
		return nil, fmt.Errorf("orgao select is empty")
	}
	names := make([]string, 0, len(options)-1)
	for _, opt := range options[1:] {
		if trimmed := strings.TrimSpace(opt); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names, nil
}

// Session exposes the underlying remote session for operations the
// sync engine drives directly.
func (p *Portal) Session() browser.RemoteSession { return p.session }

// CheckLoginNeeded re-checks the current page after a navigation the
// caller performed on the raw session.
func (p *Portal) CheckLoginNeeded(ctx context.Context) error {
	return p.checkLoginNeeded(ctx)
}

// saveCookies persists the session cookies as JSON.
func (p *Portal) saveCookies(ctx context.Context) error {
	cookies, err := p.session.Cookies(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	return os.WriteFile(p.cfg.CookiesPath, data, 0o600)
}

// loadCookies reads persisted cookies. A missing or corrupt file just
// means no replay.
func (p *Portal) loadCookies() ([]browser.Cookie, error) {
	data, err := os.ReadFile(p.cfg.CookiesPath)
	if err != nil {
		return nil, nil
	}
	var cookies []browser.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, nil
	}
	return cookies, nil
}
