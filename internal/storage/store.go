package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/models"
)

// Store wraps the database connection with the queries the service
// needs. All remote work happens outside transactions; a tx only ever
// wraps local writes.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Connect opens the configured database and runs migrations.
func Connect(cfg config.DatabaseConfig, logger *logrus.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.AutoMigrate(); err != nil {
		return nil, err
	}
	store.logger.WithFields(logrus.Fields{
		"component": "storage",
		"driver":    cfg.Driver,
	}).Info("Database ready")
	return store, nil
}

// New wraps an existing gorm connection. Used by tests.
func New(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// AutoMigrate migrates all model tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetOrCreateAuthor returns the author with the given name, creating
// it if needed.
func (s *Store) GetOrCreateAuthor(name string) (*models.Author, error) {
	var author models.Author
	err := s.db.Where(models.Author{Name: name}).FirstOrCreate(&author).Error
	if err != nil {
		return nil, fmt.Errorf("get or create author %q: %w", name, err)
	}
	return &author, nil
}

// GetOrCreateKeyword returns the keyword with the given name, creating
// it if needed.
func (s *Store) GetOrCreateKeyword(name string) (*models.Keyword, error) {
	var kw models.Keyword
	err := s.db.Where(models.Keyword{Name: name}).FirstOrCreate(&kw).Error
	if err != nil {
		return nil, fmt.Errorf("get or create keyword %q: %w", name, err)
	}
	return &kw, nil
}

// CreatePrePedido stores a new submission in WAITING state.
func (s *Store) CreatePrePedido(pp *models.PrePedido) error {
	pp.State = models.PrePedidoWaiting
	if err := s.db.Create(pp).Error; err != nil {
		return fmt.Errorf("create prepedido: %w", err)
	}
	return nil
}

// PendingPrePedidos returns WAITING pre-pedidos with authors preloaded,
// oldest first.
func (s *Store) PendingPrePedidos() ([]models.PrePedido, error) {
	var pps []models.PrePedido
	err := s.db.Preload("Author").
		Where("state = ?", models.PrePedidoWaiting).
		Order("id asc").
		Find(&pps).Error
	if err != nil {
		return nil, fmt.Errorf("list pending prepedidos: %w", err)
	}
	return pps, nil
}

// ProcessPrePedido commits a successful portal submission: the new
// pedido (with its keywords) and the pre-pedido state flip happen in
// one transaction so a crash between them cannot strand the protocol.
func (s *Store) ProcessPrePedido(pp *models.PrePedido, pedido *models.Pedido) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, name := range splitKeywords(pp.Keywords) {
			var kw models.Keyword
			if err := tx.Where(models.Keyword{Name: name}).FirstOrCreate(&kw).Error; err != nil {
				return fmt.Errorf("keyword %q: %w", name, err)
			}
			pedido.Keywords = append(pedido.Keywords, kw)
		}
		if err := tx.Create(pedido).Error; err != nil {
			return fmt.Errorf("create pedido: %w", err)
		}
		pp.State = models.PrePedidoProcessed
		if err := tx.Model(pp).Update("state", models.PrePedidoProcessed).Error; err != nil {
			return fmt.Errorf("mark prepedido processed: %w", err)
		}
		return nil
	})
}

// PedidoByProtocol returns the pedido with the given protocol, fully
// loaded, or gorm.ErrRecordNotFound.
func (s *Store) PedidoByProtocol(protocol int) (*models.Pedido, error) {
	var pedido models.Pedido
	err := s.db.Preload("Author").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("date asc, id asc") }).
		Preload("Keywords").
		Preload("Attachments").
		Where("protocol = ?", protocol).
		First(&pedido).Error
	if err != nil {
		return nil, err
	}
	return &pedido, nil
}

// PedidoByID returns the pedido with the given row id, fully loaded,
// or gorm.ErrRecordNotFound.
func (s *Store) PedidoByID(id uint) (*models.Pedido, error) {
	var pedido models.Pedido
	err := s.db.Preload("Author").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("date asc, id asc") }).
		Preload("Keywords").
		Preload("Attachments").
		First(&pedido, id).Error
	if err != nil {
		return nil, err
	}
	return &pedido, nil
}

// FindPedidoByProtocol returns the bare pedido row or nil when absent.
func (s *Store) FindPedidoByProtocol(protocol int) (*models.Pedido, error) {
	var pedido models.Pedido
	err := s.db.Where("protocol = ?", protocol).First(&pedido).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pedido %d: %w", protocol, err)
	}
	return &pedido, nil
}

// SavePedido persists changes to an existing pedido row.
func (s *Store) SavePedido(pedido *models.Pedido) error {
	if err := s.db.Save(pedido).Error; err != nil {
		return fmt.Errorf("save pedido %d: %w", pedido.Protocol, err)
	}
	return nil
}

// CreateRecoveredPedido stores a pedido first seen during
// reconciliation, attributed to the default author and tagged so it
// can be told apart from API submissions.
func (s *Store) CreateRecoveredPedido(pedido *models.Pedido, defaultAuthor string) error {
	author, err := s.GetOrCreateAuthor(defaultAuthor)
	if err != nil {
		return err
	}
	kw, err := s.GetOrCreateKeyword("recuperado")
	if err != nil {
		return err
	}
	pedido.AuthorID = author.ID
	pedido.Keywords = append(pedido.Keywords, *kw)
	if err := s.db.Create(pedido).Error; err != nil {
		return fmt.Errorf("create recovered pedido %d: %w", pedido.Protocol, err)
	}
	return nil
}

// AppendMessages adds history rows not already present. Identity is
// the full (date, justification, situation, responsible) tuple, so a
// re-run of the same page is a no-op. Returns how many rows were
// added.
func (s *Store) AppendMessages(pedidoID uint, msgs []models.Message) (int, error) {
	added := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing []models.Message
		if err := tx.Where("pedido_id = ?", pedidoID).Find(&existing).Error; err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		for _, m := range existing {
			seen[messageKey(m)] = true
		}
		for _, m := range msgs {
			m.PedidoID = pedidoID
			key := messageKey(m)
			if seen[key] {
				continue
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			seen[key] = true
			added++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append messages for pedido %d: %w", pedidoID, err)
	}
	return added, nil
}

func messageKey(m models.Message) string {
	date := ""
	if m.Date != nil {
		date = m.Date.UTC().Format(time.RFC3339)
	}
	return date + "\x00" + m.Justification + "\x00" + m.Situation + "\x00" + m.Responsible
}

// AttachmentByName returns a pedido's attachment row by sanitized
// name, or nil when it does not exist yet.
func (s *Store) AttachmentByName(pedidoID uint, name string) (*models.Attachment, error) {
	var att models.Attachment
	err := s.db.Where("pedido_id = ? AND name = ?", pedidoID, name).First(&att).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attachment %q: %w", name, err)
	}
	return &att, nil
}

// SaveAttachment creates or updates an attachment row.
func (s *Store) SaveAttachment(att *models.Attachment) error {
	if err := s.db.Save(att).Error; err != nil {
		return fmt.Errorf("save attachment %q: %w", att.Name, err)
	}
	return nil
}

// ListOrgaos returns all known agency names sorted alphabetically.
func (s *Store) ListOrgaos() ([]string, error) {
	var orgaos []models.Orgao
	if err := s.db.Order("name asc").Find(&orgaos).Error; err != nil {
		return nil, fmt.Errorf("list orgaos: %w", err)
	}
	names := make([]string, len(orgaos))
	for i, o := range orgaos {
		names[i] = o.Name
	}
	return names, nil
}

// OrgaoExists reports whether the given agency name is known.
func (s *Store) OrgaoExists(name string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Orgao{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check orgao %q: %w", name, err)
	}
	return count > 0, nil
}

// ReplaceOrgaos swaps the full agency list in one transaction.
func (s *Store) ReplaceOrgaos(names []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Orgao{}).Error; err != nil {
			return fmt.Errorf("clear orgaos: %w", err)
		}
		for _, name := range names {
			if err := tx.Create(&models.Orgao{Name: name}).Error; err != nil {
				return fmt.Errorf("insert orgao %q: %w", name, err)
			}
		}
		return nil
	})
}

// LastSync returns the date of the last completed pass of the given
// kind, or the zero time when none has run.
func (s *Store) LastSync(kind string) (time.Time, error) {
	var cp models.SyncCheckpoint
	err := s.db.Where("kind = ?", kind).First(&cp).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read checkpoint %q: %w", kind, err)
	}
	return cp.Date, nil
}

// MarkSynced records that a pass of the given kind completed at t.
func (s *Store) MarkSynced(kind string, t time.Time) error {
	var cp models.SyncCheckpoint
	err := s.db.Where("kind = ?", kind).First(&cp).Error
	if err == gorm.ErrRecordNotFound {
		cp = models.SyncCheckpoint{Kind: kind, Date: t}
		if err := s.db.Create(&cp).Error; err != nil {
			return fmt.Errorf("create checkpoint %q: %w", kind, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint %q: %w", kind, err)
	}
	cp.Date = t
	if err := s.db.Save(&cp).Error; err != nil {
		return fmt.Errorf("update checkpoint %q: %w", kind, err)
	}
	return nil
}

// ListMessages returns history entries across all pedidos, newest
// first, with their pedidos preloaded, plus the total count.
func (s *Store) ListMessages(page, perPage int) ([]models.Message, int64, error) {
	var total int64
	if err := s.db.Model(&models.Message{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	var msgs []models.Message
	err := s.db.Preload("Pedido").Preload("Pedido.Keywords").
		Order("date desc, id desc").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	return msgs, total, nil
}

// ListKeywords returns all keyword names sorted alphabetically.
func (s *Store) ListKeywords() ([]string, error) {
	var kws []models.Keyword
	if err := s.db.Order("name asc").Find(&kws).Error; err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	names := make([]string, len(kws))
	for i, k := range kws {
		names[i] = k.Name
	}
	return names, nil
}

// PedidosByKeyword returns pedidos tagged with the keyword, newest
// request first.
func (s *Store) PedidosByKeyword(name string) ([]models.Pedido, error) {
	var kw models.Keyword
	err := s.db.Where("name = ?", name).First(&kw).Error
	if err == gorm.ErrRecordNotFound {
		return []models.Pedido{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyword %q: %w", name, err)
	}
	var pedidos []models.Pedido
	err = s.db.Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("date asc, id asc") }).
		Preload("Attachments").
		Joins("JOIN pedido_keywords pk ON pk.pedido_id = pedidos.id").
		Where("pk.keyword_id = ?", kw.ID).
		Order("request_date desc").
		Find(&pedidos).Error
	if err != nil {
		return nil, fmt.Errorf("pedidos for keyword %q: %w", name, err)
	}
	return pedidos, nil
}

// ListAuthors returns all author names sorted alphabetically.
func (s *Store) ListAuthors() ([]string, error) {
	var authors []models.Author
	if err := s.db.Order("name asc").Find(&authors).Error; err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.Name
	}
	return names, nil
}

// AuthorPedidos returns an author's pedidos, newest request first.
func (s *Store) AuthorPedidos(name string) ([]models.Pedido, error) {
	var author models.Author
	err := s.db.Where("name = ?", name).First(&author).Error
	if err == gorm.ErrRecordNotFound {
		return []models.Pedido{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("author %q: %w", name, err)
	}
	var pedidos []models.Pedido
	err = s.db.Preload("Keywords").
		Where("author_id = ?", author.ID).
		Order("request_date desc").
		Find(&pedidos).Error
	if err != nil {
		return nil, fmt.Errorf("pedidos for author %q: %w", name, err)
	}
	return pedidos, nil
}

// WaitingPrePedidos returns WAITING pre-pedidos with authors
// preloaded, for the API listing.
func (s *Store) WaitingPrePedidos() ([]models.PrePedido, error) {
	return s.PendingPrePedidos()
}

func splitKeywords(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
