package esic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/archive"
	"github.com/esiclivre/esic-api/internal/models"
	"github.com/esiclivre/esic-api/internal/storage"
)

// Checkpoint kinds for the once-per-day passes.
const (
	checkpointPedidos = "pedidos"
	checkpointOrgaos  = "orgaos"
)

// Engine reconciles local state with the portal. One Tick submits
// pending pre-pedidos and, at most once per calendar day, refreshes
// the agency list and walks every tracked pedido. All effects are
// idempotent upserts, so a crashed pass simply reruns.
type Engine struct {
	store         *storage.Store
	portal        *Portal
	parser        *Parser
	uploader      archive.Uploader
	downloadDir   string
	itemPrefix    string
	defaultAuthor string
	pollEvery     time.Duration
	maxRetries    int
	logger        *logrus.Logger
	now           func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(store *storage.Store, portal *Portal, parser *Parser, uploader archive.Uploader, downloadDir, itemPrefix, defaultAuthor string, pollEvery time.Duration, maxRetries int, logger *logrus.Logger) *Engine {
	return &Engine{
		store:         store,
		portal:        portal,
		parser:        parser,
		uploader:      uploader,
		downloadDir:   downloadDir,
		itemPrefix:    itemPrefix,
		defaultAuthor: defaultAuthor,
		pollEvery:     pollEvery,
		maxRetries:    maxRetries,
		logger:        logger,
		now:           time.Now,
	}
}

// Tick runs one pass of routine portal work.
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.submitPending(ctx); err != nil {
		return err
	}
	if err := e.syncOrgaosIfStale(ctx); err != nil {
		return err
	}
	return e.syncPedidosIfStale(ctx)
}

// submitPending posts each WAITING pre-pedido and commits the created
// pedido together with the state flip.
func (e *Engine) submitPending(ctx context.Context) error {
	pending, err := e.store.PendingPrePedidos()
	if err != nil {
		return err
	}
	for i := range pending {
		pp := &pending[i]
		protocol, deadline, err := e.portal.PostPedido(ctx, pp.OrgaoName, pp.Text)
		if err != nil {
			return fmt.Errorf("submit prepedido %d: %w", pp.ID, err)
		}
		pedido := &models.Pedido{
			Protocol:    protocol,
			AuthorID:    pp.AuthorID,
			OrgaoName:   pp.OrgaoName,
			Description: pp.Text,
			Deadline:    &deadline,
		}
		if err := e.store.ProcessPrePedido(pp, pedido); err != nil {
			return err
		}
		e.logger.WithFields(logrus.Fields{
			"component": "sync",
			"prepedido": pp.ID,
			"protocol":  protocol,
		}).Info("Pre-pedido submitted")
	}
	return nil
}

// syncOrgaosIfStale replaces the stored agency list once per day.
func (e *Engine) syncOrgaosIfStale(ctx context.Context) error {
	last, err := e.store.LastSync(checkpointOrgaos)
	if err != nil {
		return err
	}
	if sameDay(last, e.now()) {
		return nil
	}

	names, err := e.portal.ListOrgaos(ctx)
	if err != nil {
		return err
	}
	if err := e.store.ReplaceOrgaos(names); err != nil {
		return err
	}
	if err := e.store.MarkSynced(checkpointOrgaos, e.now()); err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"component": "sync",
		"orgaos":    len(names),
	}).Info("Agency list refreshed")
	return nil
}

// syncPedidosIfStale walks every pedido in the portal listing once per
// day. The checkpoint is written only after the whole list commits, so
// a crash mid-pass reruns the same day and the upserts absorb the
// replay.
func (e *Engine) syncPedidosIfStale(ctx context.Context) error {
	last, err := e.store.LastSync(checkpointPedidos)
	if err != nil {
		return err
	}
	if sameDay(last, e.now()) {
		return nil
	}

	if err := e.portal.GotoConsultPedidos(ctx); err != nil {
		return err
	}
	session := e.portal.Session()
	total, err := session.CountLinks(ctx, pedidoGridID)
	if err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"component": "sync",
		"pedidos":   total,
	}).Info("Reconciling pedidos")

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := session.ClickLink(ctx, pedidoGridID, i); err != nil {
			return err
		}
		html, err := session.PageSource(ctx)
		if err != nil {
			return err
		}
		parsed, err := e.parser.ParsePedidoPage(html)
		if err != nil {
			return err
		}
		if parsed == nil {
			// The portal sometimes serves a bodyless page; skip and
			// catch the record on the next pass.
			e.logger.WithField("component", "sync").Warn("Detail page missing, skipping record")
			if err := session.Back(ctx); err != nil {
				return err
			}
			continue
		}
		if err := e.syncRecord(ctx, parsed); err != nil {
			return err
		}
		if err := session.Back(ctx); err != nil {
			return err
		}
	}

	e.cleanupDownloads()
	if err := e.store.MarkSynced(checkpointPedidos, e.now()); err != nil {
		return err
	}
	e.logger.WithField("component", "sync").Info("Pedido reconciliation complete")
	return nil
}

// syncRecord upserts one parsed pedido: core fields, deduplicated
// history, and changed attachments.
func (e *Engine) syncRecord(ctx context.Context, parsed *ParsedPedido) error {
	orgao := parsed.Orgao
	if orgao == "" {
		orgao = "desconhecido"
	}

	pedido, err := e.store.FindPedidoByProtocol(parsed.Protocol)
	if err != nil {
		return err
	}
	if pedido == nil {
		pedido = &models.Pedido{Protocol: parsed.Protocol}
		applyParsed(pedido, parsed, orgao)
		if err := e.store.CreateRecoveredPedido(pedido, e.defaultAuthor); err != nil {
			return err
		}
		e.logger.WithFields(logrus.Fields{
			"component": "sync",
			"protocol":  parsed.Protocol,
		}).Info("Recovered pedido not submitted through the API")
	} else {
		applyParsed(pedido, parsed, orgao)
		if err := e.store.SavePedido(pedido); err != nil {
			return err
		}
	}

	msgs := make([]models.Message, len(parsed.History))
	for i, m := range parsed.History {
		msgs[i] = models.Message{
			Situation:     m.Situation,
			Justification: m.Justification,
			Responsible:   m.Responsible,
			Date:          m.Date,
		}
	}
	added, err := e.store.AppendMessages(pedido.ID, msgs)
	if err != nil {
		return err
	}
	if added > 0 {
		e.logger.WithFields(logrus.Fields{
			"component": "sync",
			"protocol":  pedido.Protocol,
			"messages":  added,
		}).Info("New history entries")
	}

	return e.syncAttachments(ctx, pedido, parsed)
}

func applyParsed(pedido *models.Pedido, parsed *ParsedPedido, orgao string) {
	pedido.Interessado = parsed.Interessado
	pedido.Situation = parsed.Situation
	pedido.RequestDate = parsed.RequestDate
	pedido.ContactOption = parsed.ContactOption
	pedido.Description = parsed.Description
	pedido.OrgaoName = orgao
}

// syncAttachments archives attachments whose portal timestamp is new
// or changed. The portal offers no per-file download, so any change
// re-downloads every attachment of the record; only the changed ones
// get re-uploaded. The local copy is deleted only after a confirmed
// upload, never on failure.
func (e *Engine) syncAttachments(ctx context.Context, pedido *models.Pedido, parsed *ParsedPedido) error {
	type pendingUpload struct {
		att ParsedAttachment
		row *models.Attachment
	}
	var changed []pendingUpload
	for _, att := range parsed.Attachments {
		row, err := e.store.AttachmentByName(pedido.ID, att.Name)
		if err != nil {
			return err
		}
		if row == nil || !sameTimestamp(row.PortalDate, att.CreatedAt) {
			changed = append(changed, pendingUpload{att: att, row: row})
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := e.portal.Session().ClickInputs(ctx, attachmentsTableID); err != nil {
		return err
	}
	if err := e.waitDownloads(ctx); err != nil {
		return err
	}
	e.cleanupDownloads()

	itemKey := archive.ItemKey(e.itemPrefix, pedido.Protocol)
	for _, pu := range changed {
		path := filepath.Join(e.downloadDir, pu.att.Name)
		if _, err := os.Stat(path); err != nil {
			// Downloads do fail on the portal side; the next daily
			// pass retries because the stored timestamp stays stale.
			e.logger.WithFields(logrus.Fields{
				"component": "sync",
				"protocol":  pedido.Protocol,
				"file":      pu.att.Name,
			}).Warn("Attachment file never arrived, will retry next pass")
			continue
		}

		url, err := e.uploader.Upload(ctx, itemKey, path, pu.att.Name)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"component": "sync",
				"protocol":  pedido.Protocol,
				"file":      pu.att.Name,
			}).WithError(err).Warn("Attachment upload failed, keeping local copy")
			continue
		}
		if err := os.Remove(path); err != nil {
			e.logger.WithField("component", "sync").WithError(err).Warn("Could not remove uploaded file")
		}

		row := pu.row
		if row == nil {
			row = &models.Attachment{PedidoID: pedido.ID, Name: pu.att.Name}
		}
		row.PortalDate = pu.att.CreatedAt
		row.ArchiveURL = url
		if err := e.store.SaveAttachment(row); err != nil {
			return err
		}
	}
	return nil
}

// waitDownloads blocks until no in-progress download marker remains,
// up to the retry budget.
func (e *Engine) waitDownloads(ctx context.Context) error {
	for i := 0; i < e.maxRetries; i++ {
		entries, err := os.ReadDir(e.downloadDir)
		if err != nil {
			return fmt.Errorf("read download dir: %w", err)
		}
		pending := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), partMarkerSuffix) {
				pending = true
				break
			}
		}
		if !pending {
			return nil
		}
		if err := sleepCtx(ctx, e.pollEvery); err != nil {
			return err
		}
	}
	e.logger.WithField("component", "sync").Warn("Downloads still unfinished after retry budget")
	return nil
}

// cleanupDownloads renames downloaded files to their sanitized names
// and deletes leftover in-progress markers, which at this point mean
// the download failed.
func (e *Engine) cleanupDownloads() {
	entries, err := os.ReadDir(e.downloadDir)
	if err != nil {
		e.logger.WithField("component", "sync").WithError(err).Warn("Could not read download dir")
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(e.downloadDir, name)
		if strings.HasSuffix(name, partMarkerSuffix) {
			if err := os.Remove(full); err != nil {
				e.logger.WithField("component", "sync").WithError(err).Warn("Could not remove stale download marker")
			}
			continue
		}
		clean := SanitizeAttachmentName(name)
		if clean != "" && clean != name {
			if err := os.Rename(full, filepath.Join(e.downloadDir, clean)); err != nil {
				e.logger.WithField("component", "sync").WithError(err).Warn("Could not rename download")
			}
		}
	}
}

func sameTimestamp(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
