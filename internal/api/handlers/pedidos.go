package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/esiclivre/esic-api/internal/api/dto"
	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/models"
	"github.com/esiclivre/esic-api/internal/storage"
)

// PedidoHandler handles pedido submission and retrieval
type PedidoHandler struct {
	store  *storage.Store
	portal config.PortalConfig
	logger *logrus.Logger
}

// NewPedidoHandler creates a new pedido handler
func NewPedidoHandler(store *storage.Store, portal config.PortalConfig, logger *logrus.Logger) *PedidoHandler {
	return &PedidoHandler{store: store, portal: portal, logger: logger}
}

// CreatePedido godoc
// @Summary Queue a new pedido
// @Description Accepts a pedido for asynchronous submission to the portal
// @Tags pedidos
// @Accept json
// @Produce json
// @Param pedido body dto.CreatePedidoRequest true "Pedido"
// @Success 200 {object} dto.StatusResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/pedidos [post]
func (h *PedidoHandler) CreatePedido(c *gin.Context) {
	var req dto.CreatePedidoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body."})
		return
	}

	text := strings.TrimSpace(req.Text)
	// Size limit enforced by the portal
	if len([]rune(text)) > h.portal.TextLimit {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Text size limit exceeded.",
			Fields:  []string{"text"},
		})
		return
	}

	if req.Orgao == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "No Orgao specified.",
			Fields:  []string{"orgao"},
		})
		return
	}
	exists, err := h.store.OrgaoExists(req.Orgao)
	if err != nil {
		h.serverError(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Orgao not found.",
			Fields:  []string{"orgao"},
		})
		return
	}

	author, err := h.store.GetOrCreateAuthor(req.Author)
	if err != nil {
		h.serverError(c, err)
		return
	}
	for _, kw := range req.Keywords {
		if _, err := h.store.GetOrCreateKeyword(kw); err != nil {
			h.serverError(c, err)
			return
		}
	}

	pp := &models.PrePedido{
		AuthorID:  author.ID,
		OrgaoName: req.Orgao,
		Text:      text,
		Keywords:  strings.Join(req.Keywords, ","),
	}
	if err := h.store.CreatePrePedido(pp); err != nil {
		h.serverError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"component": "api",
		"prepedido": pp.ID,
		"author":    req.Author,
	}).Info("Pedido queued")
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// GetByProtocol godoc
// @Summary Get a pedido by protocol
// @Tags pedidos
// @Produce json
// @Param protocolo path int true "Protocol"
// @Success 200 {object} dto.PedidoResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/pedidos/protocolo/{protocolo} [get]
func (h *PedidoHandler) GetByProtocol(c *gin.Context) {
	protocol, err := strconv.Atoi(c.Param("protocolo"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Invalid protocol.",
			Fields:  []string{"protocolo"},
		})
		return
	}

	pedido, err := h.store.PedidoByProtocol(protocol)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Pedido not found."})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, pedidoResponse(pedido))
}

// GetByID godoc
// @Summary Get a pedido by id
// @Tags pedidos
// @Produce json
// @Param id path int true "Pedido id"
// @Success 200 {object} dto.PedidoResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/pedidos/id/{id} [get]
func (h *PedidoHandler) GetByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Invalid id.",
			Fields:  []string{"id"},
		})
		return
	}

	pedido, err := h.store.PedidoByID(uint(id))
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Pedido not found."})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, pedidoResponse(pedido))
}

// ListPrePedidos godoc
// @Summary List queued pedidos
// @Tags pedidos
// @Produce json
// @Success 200 {object} dto.PrePedidosResponse
// @Router /api/v1/prepedidos [get]
func (h *PedidoHandler) ListPrePedidos(c *gin.Context) {
	pps, err := h.store.WaitingPrePedidos()
	if err != nil {
		h.serverError(c, err)
		return
	}

	items := make([]dto.PrePedidoItem, len(pps))
	for i, pp := range pps {
		items[i] = dto.PrePedidoItem{
			Text:     pp.Text,
			Orgao:    pp.OrgaoName,
			Created:  pp.CreatedAt,
			Keywords: pp.Keywords,
			Author:   pp.Author.Name,
		}
	}
	c.JSON(http.StatusOK, dto.PrePedidosResponse{PrePedidos: items})
}

func (h *PedidoHandler) serverError(c *gin.Context, err error) {
	h.logger.WithField("component", "api").WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Internal server error."})
}

// pedidoResponse maps a fully loaded pedido to its API shape.
func pedidoResponse(p *models.Pedido) dto.PedidoResponse {
	resp := dto.PedidoResponse{
		ID:            p.ID,
		Protocol:      p.Protocol,
		Interessado:   p.Interessado,
		Situation:     p.Situation,
		RequestDate:   p.RequestDate,
		ContactOption: p.ContactOption,
		Description:   p.Description,
		Deadline:      p.Deadline,
		Orgao:         p.OrgaoName,
		Author:        p.Author.Name,
		Keywords:      make([]string, len(p.Keywords)),
		History:       make([]dto.MessageResponse, len(p.History)),
		Attachments:   make([]dto.AttachmentResponse, len(p.Attachments)),
	}
	for i, kw := range p.Keywords {
		resp.Keywords[i] = kw.Name
	}
	for i, m := range p.History {
		resp.History[i] = dto.MessageResponse{
			Situation:     m.Situation,
			Justification: m.Justification,
			Responsible:   m.Responsible,
			Date:          m.Date,
		}
	}
	for i, a := range p.Attachments {
		resp.Attachments[i] = dto.AttachmentResponse{
			Name:       a.Name,
			CreatedAt:  a.PortalDate,
			ArchiveURL: a.ArchiveURL,
		}
	}
	return resp
}
