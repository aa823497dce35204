package models

import "time"

// Pre-pedido states.
const (
	PrePedidoWaiting   = "WAITING"
	PrePedidoProcessed = "PROCESSED"
)

// Pedido is an information request tracked on the portal. Protocol is
// the portal-assigned identity; everything else mirrors the remote
// record and is overwritten on sync.
type Pedido struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Protocol      int        `gorm:"uniqueIndex;not null" json:"protocolo"`
	Interessado   string     `json:"interessado"`
	Situation     string     `json:"situacao"`
	RequestDate   *time.Time `json:"data_pedido"`
	ContactOption string     `json:"opcao_contato"`
	Description   string     `gorm:"type:text" json:"descricao"`
	Deadline      *time.Time `json:"prazo"`
	OrgaoName     string     `json:"orgao"`

	AuthorID uint   `json:"-"`
	Author   Author `json:"-"`

	History     []Message    `gorm:"foreignKey:PedidoID" json:"historico"`
	Keywords    []Keyword    `gorm:"many2many:pedido_keywords;" json:"-"`
	Attachments []Attachment `gorm:"foreignKey:PedidoID" json:"anexos"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// PrePedido is a submission accepted by the API but not yet placed on
// the portal. Keywords are stored comma-separated until the pedido
// exists to attach them to.
type PrePedido struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AuthorID  uint   `json:"-"`
	Author    Author `json:"-"`
	OrgaoName string `json:"orgao"`
	Text      string `gorm:"type:text" json:"text"`
	Keywords  string `json:"keywords"`
	State     string `gorm:"index;default:WAITING" json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one row of a pedido's history table.
type Message struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	PedidoID      uint       `gorm:"index" json:"-"`
	Pedido        Pedido     `json:"-"`
	Situation     string     `json:"situacao"`
	Justification string     `gorm:"type:text" json:"justificativa"`
	Responsible   string     `json:"responsavel"`
	Date          *time.Time `json:"data"`

	CreatedAt time.Time `json:"-"`
}

// Attachment is a response file published on the portal. Name is the
// sanitized filename and identifies the attachment within its pedido;
// PortalDate is the portal's creation timestamp used for change
// detection; ArchiveURL points at the archived copy.
type Attachment struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	PedidoID   uint       `gorm:"index" json:"-"`
	Name       string     `json:"name"`
	PortalDate *time.Time `json:"created_at"`
	ArchiveURL string     `json:"ia_url"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Orgao is a government agency selectable on the submission form.
type Orgao struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// Author is a pedido submitter known to the API.
type Author struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// Keyword tags pedidos for retrieval.
type Keyword struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// SyncCheckpoint records the last calendar day a reconciliation pass
// completed. Kind is "pedidos" or "orgaos".
type SyncCheckpoint struct {
	ID   uint      `gorm:"primaryKey"`
	Kind string    `gorm:"uniqueIndex;not null"`
	Date time.Time `gorm:"not null"`
}

// AllModels returns every model for migration.
func AllModels() []any {
	return []any{
		&Author{},
		&Keyword{},
		&Orgao{},
		&Pedido{},
		&PrePedido{},
		&Message{},
		&Attachment{},
		&SyncCheckpoint{},
	}
}
