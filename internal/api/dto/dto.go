package dto

import "time"

// ErrorResponse is the error payload for 4xx responses. Fields names
// the offending request fields, when the error is tied to input.
type ErrorResponse struct {
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// CreatePedidoRequest is the body for submitting a new pedido.
type CreatePedidoRequest struct {
	Author   string   `json:"author" binding:"required"`
	Text     string   `json:"text" binding:"required"`
	Orgao    string   `json:"orgao"`
	Keywords []string `json:"keywords"`
}

// StatusResponse acknowledges an accepted operation.
type StatusResponse struct {
	Status string `json:"status"`
}

// PedidoResponse is the full pedido representation.
type PedidoResponse struct {
	ID            uint                 `json:"id"`
	Protocol      int                  `json:"protocolo"`
	Interessado   string               `json:"interessado"`
	Situation     string               `json:"situacao"`
	RequestDate   *time.Time           `json:"data_pedido"`
	ContactOption string               `json:"opcao_contato"`
	Description   string               `json:"descricao"`
	Deadline      *time.Time           `json:"prazo"`
	Orgao         string               `json:"orgao"`
	Author        string               `json:"author"`
	Keywords      []string             `json:"keywords"`
	History       []MessageResponse    `json:"historico"`
	Attachments   []AttachmentResponse `json:"anexos"`
}

// MessageResponse is one history entry.
type MessageResponse struct {
	Situation     string     `json:"situacao"`
	Justification string     `json:"justificativa"`
	Responsible   string     `json:"responsavel"`
	Date          *time.Time `json:"data"`
}

// AttachmentResponse is one archived response file.
type AttachmentResponse struct {
	Name       string     `json:"name"`
	CreatedAt  *time.Time `json:"created_at"`
	ArchiveURL string     `json:"ia_url"`
}

// MessageListItem is a history entry in the global message feed.
type MessageListItem struct {
	MessageResponse
	Protocol int      `json:"protocolo"`
	Orgao    string   `json:"orgao"`
	Keywords []string `json:"keywords"`
}

// MessageListResponse is the paginated message feed.
type MessageListResponse struct {
	Messages []MessageListItem `json:"messages"`
	Total    int64             `json:"total"`
}

// OrgaosResponse lists the known agencies.
type OrgaosResponse struct {
	Orgaos []string `json:"orgaos"`
}

// KeywordsResponse lists the known keywords.
type KeywordsResponse struct {
	Keywords []string `json:"keywords"`
}

// KeywordPedidosResponse lists the pedidos tagged with a keyword.
type KeywordPedidosResponse struct {
	Keyword string           `json:"keyword"`
	Pedidos []PedidoResponse `json:"pedidos"`
}

// AuthorsResponse lists the known authors.
type AuthorsResponse struct {
	Authors []string `json:"authors"`
}

// AuthorPedidoSummary is the compact pedido form in author listings.
type AuthorPedidoSummary struct {
	ID        uint       `json:"id"`
	Protocol  int        `json:"protocolo"`
	Orgao     string     `json:"orgao"`
	Situation string     `json:"situacao"`
	Deadline  *time.Time `json:"deadline"`
	Keywords  []string   `json:"keywords"`
}

// AuthorResponse is an author with their pedidos.
type AuthorResponse struct {
	Name    string                `json:"name"`
	Pedidos []AuthorPedidoSummary `json:"pedidos"`
}

// PrePedidoItem is one queued submission.
type PrePedidoItem struct {
	Text     string    `json:"text"`
	Orgao    string    `json:"orgao"`
	Created  time.Time `json:"created"`
	Keywords string    `json:"keywords"`
	Author   string    `json:"author"`
}

// PrePedidosResponse lists queued submissions.
type PrePedidosResponse struct {
	PrePedidos []PrePedidoItem `json:"prepedidos"`
}

// WorkerStatusResponse reports the background worker state.
type WorkerStatusResponse struct {
	Running bool `json:"running"`
}
