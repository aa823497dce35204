package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/api/dto"
	"github.com/esiclivre/esic-api/internal/services"
	"github.com/esiclivre/esic-api/internal/storage"
)

const orgaosCacheKey = "orgaos"

// CatalogHandler serves the read-only listings: agencies, keywords,
// authors, and the global message feed.
type CatalogHandler struct {
	store  *storage.Store
	cache  services.CacheServiceInterface
	logger *logrus.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(store *storage.Store, cache services.CacheServiceInterface, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, cache: cache, logger: logger}
}

// ListOrgaos godoc
// @Summary List agencies
// @Tags catalog
// @Produce json
// @Success 200 {object} dto.OrgaosResponse
// @Router /api/v1/orgaos [get]
func (h *CatalogHandler) ListOrgaos(c *gin.Context) {
	// The agency list changes at most once per day; serve it cached.
	if cached, err := h.cache.Get(c.Request.Context(), orgaosCacheKey); err == nil {
		var resp dto.OrgaosResponse
		if json.Unmarshal([]byte(cached), &resp) == nil {
			c.JSON(http.StatusOK, resp)
			return
		}
	}

	names, err := h.store.ListOrgaos()
	if err != nil {
		h.serverError(c, err)
		return
	}
	resp := dto.OrgaosResponse{Orgaos: names}
	if data, err := json.Marshal(resp); err == nil {
		if err := h.cache.Set(c.Request.Context(), orgaosCacheKey, string(data)); err != nil {
			h.logger.WithField("component", "api").WithError(err).Warn("Could not cache orgaos")
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListMessages godoc
// @Summary List history messages across all pedidos
// @Tags catalog
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page_num query int false "Page size" default(20)
// @Success 200 {object} dto.MessageListResponse
// @Router /api/v1/messages [get]
func (h *CatalogHandler) ListMessages(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page_num", "20"))
	if err != nil || perPage < 1 || perPage > 100 {
		perPage = 20
	}

	msgs, total, err := h.store.ListMessages(page, perPage)
	if err != nil {
		h.serverError(c, err)
		return
	}

	items := make([]dto.MessageListItem, len(msgs))
	for i, m := range msgs {
		keywords := make([]string, len(m.Pedido.Keywords))
		for j, kw := range m.Pedido.Keywords {
			keywords[j] = kw.Name
		}
		items[i] = dto.MessageListItem{
			MessageResponse: dto.MessageResponse{
				Situation:     m.Situation,
				Justification: m.Justification,
				Responsible:   m.Responsible,
				Date:          m.Date,
			},
			Protocol: m.Pedido.Protocol,
			Orgao:    m.Pedido.OrgaoName,
			Keywords: keywords,
		}
	}
	c.JSON(http.StatusOK, dto.MessageListResponse{Messages: items, Total: total})
}

// ListKeywords godoc
// @Summary List keywords
// @Tags catalog
// @Produce json
// @Success 200 {object} dto.KeywordsResponse
// @Router /api/v1/keywords [get]
func (h *CatalogHandler) ListKeywords(c *gin.Context) {
	names, err := h.store.ListKeywords()
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.KeywordsResponse{Keywords: names})
}

// GetKeyword godoc
// @Summary List pedidos tagged with a keyword
// @Tags catalog
// @Produce json
// @Param name path string true "Keyword"
// @Success 200 {object} dto.KeywordPedidosResponse
// @Router /api/v1/keywords/{name} [get]
func (h *CatalogHandler) GetKeyword(c *gin.Context) {
	name := c.Param("name")
	pedidos, err := h.store.PedidosByKeyword(name)
	if err != nil {
		h.serverError(c, err)
		return
	}

	resp := dto.KeywordPedidosResponse{
		Keyword: name,
		Pedidos: make([]dto.PedidoResponse, len(pedidos)),
	}
	for i := range pedidos {
		resp.Pedidos[i] = pedidoResponse(&pedidos[i])
	}
	c.JSON(http.StatusOK, resp)
}

// ListAuthors godoc
// @Summary List authors
// @Tags catalog
// @Produce json
// @Success 200 {object} dto.AuthorsResponse
// @Router /api/v1/authors [get]
func (h *CatalogHandler) ListAuthors(c *gin.Context) {
	names, err := h.store.ListAuthors()
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AuthorsResponse{Authors: names})
}

// GetAuthor godoc
// @Summary List an author's pedidos
// @Tags catalog
// @Produce json
// @Param name path string true "Author name"
// @Success 200 {object} dto.AuthorResponse
// @Router /api/v1/authors/{name} [get]
func (h *CatalogHandler) GetAuthor(c *gin.Context) {
	name := c.Param("name")
	pedidos, err := h.store.AuthorPedidos(name)
	if err != nil {
		h.serverError(c, err)
		return
	}

	resp := dto.AuthorResponse{
		Name:    name,
		Pedidos: make([]dto.AuthorPedidoSummary, len(pedidos)),
	}
	for i, p := range pedidos {
		keywords := make([]string, len(p.Keywords))
		for j, kw := range p.Keywords {
			keywords[j] = kw.Name
		}
		resp.Pedidos[i] = dto.AuthorPedidoSummary{
			ID:        p.ID,
			Protocol:  p.Protocol,
			Orgao:     p.OrgaoName,
			Situation: p.Situation,
			Deadline:  p.Deadline,
			Keywords:  keywords,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CatalogHandler) serverError(c *gin.Context, err error) {
	h.logger.WithField("component", "api").WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Internal server error."})
}
