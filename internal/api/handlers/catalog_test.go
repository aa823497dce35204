package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esiclivre/esic-api/internal/api/dto"
	"github.com/esiclivre/esic-api/internal/models"
	"github.com/esiclivre/esic-api/internal/services"
	"github.com/esiclivre/esic-api/internal/storage"
)

func catalogRouter(t *testing.T, store *storage.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cache := services.NewCacheService(nil, time.Minute, testLogger())
	handler := NewCatalogHandler(store, cache, testLogger())
	router := gin.New()
	router.GET("/orgaos", handler.ListOrgaos)
	router.GET("/messages", handler.ListMessages)
	router.GET("/keywords", handler.ListKeywords)
	router.GET("/keywords/:name", handler.GetKeyword)
	router.GET("/authors", handler.ListAuthors)
	router.GET("/authors/:name", handler.GetAuthor)
	return router
}

func TestListOrgaosServesCachedCopy(t *testing.T) {
	store := openTestStore(t)
	if err := store.ReplaceOrgaos([]string{"Secretaria A", "Secretaria B"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := catalogRouter(t, store)

	rec := getJSON(router, "/orgaos")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp dto.OrgaosResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orgaos) != 2 {
		t.Fatalf("orgaos = %v", resp.Orgaos)
	}

	// A wholesale replace does not invalidate the cache entry; the
	// second request must serve the cached list.
	if err := store.ReplaceOrgaos([]string{"Secretaria C"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rec = getJSON(router, "/orgaos")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode cached: %v", err)
	}
	if len(resp.Orgaos) != 2 {
		t.Errorf("cached orgaos = %v, want the original two", resp.Orgaos)
	}
}

func TestListMessagesPaginates(t *testing.T) {
	store := openTestStore(t)
	pedido := seedPedido(t, store)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var msgs []models.Message
	for i := 0; i < 3; i++ {
		d := base.AddDate(0, 0, i)
		msgs = append(msgs, models.Message{
			Situation:   "Em tramitacao",
			Responsible: "SIC",
			Date:        &d,
		})
	}
	if _, err := store.AppendMessages(pedido.ID, msgs); err != nil {
		t.Fatalf("append: %v", err)
	}
	router := catalogRouter(t, store)

	rec := getJSON(router, "/messages?page=1&per_page_num=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp dto.MessageListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Three appended plus the one seeded with the pedido.
	if resp.Total != 4 {
		t.Errorf("total = %d, want 4", resp.Total)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("page size = %d, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Protocol != 123 {
		t.Errorf("protocol = %d", resp.Messages[0].Protocol)
	}
	// Newest first.
	if resp.Messages[0].Date.Before(*resp.Messages[1].Date) {
		t.Error("messages not sorted newest first")
	}

	rec = getJSON(router, "/messages?page=999&per_page_num=-5")
	if rec.Code != http.StatusOK {
		t.Errorf("bad pagination params rejected: %d", rec.Code)
	}
}

func TestGetKeywordListsTaggedPedidos(t *testing.T) {
	store := openTestStore(t)
	seedPedido(t, store)
	router := catalogRouter(t, store)

	rec := getJSON(router, "/keywords/recuperado")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp dto.KeywordPedidosResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Keyword != "recuperado" || len(resp.Pedidos) != 1 {
		t.Fatalf("payload = %+v", resp)
	}
	if resp.Pedidos[0].Protocol != 123 {
		t.Errorf("protocol = %d", resp.Pedidos[0].Protocol)
	}

	rec = getJSON(router, "/keywords/nada")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d for unknown keyword", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Pedidos) != 0 {
		t.Errorf("unknown keyword returned %d pedidos", len(resp.Pedidos))
	}
}

func TestListKeywordsAndAuthors(t *testing.T) {
	store := openTestStore(t)
	seedPedido(t, store)
	router := catalogRouter(t, store)

	rec := getJSON(router, "/keywords")
	var keywords dto.KeywordsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &keywords); err != nil {
		t.Fatalf("decode keywords: %v", err)
	}
	if len(keywords.Keywords) != 1 || keywords.Keywords[0] != "recuperado" {
		t.Errorf("keywords = %v", keywords.Keywords)
	}

	rec = getJSON(router, "/authors")
	var authors dto.AuthorsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &authors); err != nil {
		t.Fatalf("decode authors: %v", err)
	}
	if len(authors.Authors) != 1 || authors.Authors[0] != "esiclivre" {
		t.Errorf("authors = %v", authors.Authors)
	}
}

func TestGetAuthorSummaries(t *testing.T) {
	store := openTestStore(t)
	seedPedido(t, store)
	router := catalogRouter(t, store)

	rec := getJSON(router, "/authors/esiclivre")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp dto.AuthorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "esiclivre" || len(resp.Pedidos) != 1 {
		t.Fatalf("payload = %+v", resp)
	}
	summary := resp.Pedidos[0]
	if summary.Protocol != 123 || summary.Orgao != "Secretaria de Teste" {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Keywords) != 1 || summary.Keywords[0] != "recuperado" {
		t.Errorf("keywords = %v", summary.Keywords)
	}
}
