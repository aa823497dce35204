package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/api/dto"
	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/models"
	"github.com/esiclivre/esic-api/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return store
}

func pedidoRouter(t *testing.T, store *storage.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewPedidoHandler(store, config.PortalConfig{TextLimit: 6000}, testLogger())
	router := gin.New()
	router.POST("/pedidos", handler.CreatePedido)
	router.GET("/pedidos/protocolo/:protocolo", handler.GetByProtocol)
	router.GET("/pedidos/id/:id", handler.GetByID)
	router.GET("/prepedidos", handler.ListPrePedidos)
	return router
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getJSON(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePedidoQueuesSubmission(t *testing.T) {
	store := openTestStore(t)
	if err := store.ReplaceOrgaos([]string{"Secretaria de Teste"}); err != nil {
		t.Fatalf("seed orgaos: %v", err)
	}
	router := pedidoRouter(t, store)

	rec := postJSON(router, "/pedidos", dto.CreatePedidoRequest{
		Author:   "alice",
		Text:     "Quantas arvores foram plantadas?",
		Orgao:    "Secretaria de Teste",
		Keywords: []string{"arvores", "meio-ambiente"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	pending, err := store.PendingPrePedidos()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].Author.Name != "alice" {
		t.Errorf("author = %q", pending[0].Author.Name)
	}
	if pending[0].Keywords != "arvores,meio-ambiente" {
		t.Errorf("keywords = %q", pending[0].Keywords)
	}
}

func TestCreatePedidoValidation(t *testing.T) {
	store := openTestStore(t)
	if err := store.ReplaceOrgaos([]string{"Secretaria de Teste"}); err != nil {
		t.Fatalf("seed orgaos: %v", err)
	}
	router := pedidoRouter(t, store)

	tests := []struct {
		name        string
		req         dto.CreatePedidoRequest
		wantMessage string
		wantField   string
	}{
		{
			name:        "text over portal limit",
			req:         dto.CreatePedidoRequest{Author: "alice", Text: strings.Repeat("a", 6001), Orgao: "Secretaria de Teste"},
			wantMessage: "Text size limit exceeded.",
			wantField:   "text",
		},
		{
			name:        "missing orgao",
			req:         dto.CreatePedidoRequest{Author: "alice", Text: "texto"},
			wantMessage: "No Orgao specified.",
			wantField:   "orgao",
		},
		{
			name:        "unknown orgao",
			req:         dto.CreatePedidoRequest{Author: "alice", Text: "texto", Orgao: "Nao Existe"},
			wantMessage: "Orgao not found.",
			wantField:   "orgao",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(router, "/pedidos", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp dto.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMessage)
			}
			if len(resp.Fields) != 1 || resp.Fields[0] != tt.wantField {
				t.Errorf("fields = %v, want [%s]", resp.Fields, tt.wantField)
			}
		})
	}
}

func TestCreatePedidoRejectsMissingBodyFields(t *testing.T) {
	router := pedidoRouter(t, openTestStore(t))

	rec := postJSON(router, "/pedidos", map[string]string{"author": "alice"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func seedPedido(t *testing.T, store *storage.Store) *models.Pedido {
	t.Helper()
	date := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	pedido := &models.Pedido{
		Protocol:    123,
		Interessado: "Fulano de Tal",
		Situation:   "Em tramitacao",
		RequestDate: &date,
		Description: "Quantas arvores foram plantadas?",
		OrgaoName:   "Secretaria de Teste",
		History: []models.Message{
			{Situation: "Aberto", Responsible: "SIC", Date: &date},
		},
	}
	if err := store.CreateRecoveredPedido(pedido, "esiclivre"); err != nil {
		t.Fatalf("seed pedido: %v", err)
	}
	return pedido
}

func TestGetPedidoByProtocol(t *testing.T) {
	store := openTestStore(t)
	seedPedido(t, store)
	router := pedidoRouter(t, store)

	rec := getJSON(router, "/pedidos/protocolo/123")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp dto.PedidoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Protocol != 123 || resp.Author != "esiclivre" {
		t.Errorf("unexpected payload: %+v", resp)
	}
	if len(resp.Keywords) != 1 || resp.Keywords[0] != "recuperado" {
		t.Errorf("keywords = %v", resp.Keywords)
	}
	if len(resp.History) != 1 {
		t.Errorf("history = %d entries", len(resp.History))
	}
}

func TestGetPedidoNotFound(t *testing.T) {
	router := pedidoRouter(t, openTestStore(t))

	rec := getJSON(router, "/pedidos/protocolo/999")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = getJSON(router, "/pedidos/protocolo/abc")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for non-numeric protocol, want 400", rec.Code)
	}
}

func TestGetPedidoByID(t *testing.T) {
	store := openTestStore(t)
	pedido := seedPedido(t, store)
	router := pedidoRouter(t, store)

	rec := getJSON(router, "/pedidos/id/"+strconv.Itoa(int(pedido.ID)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp dto.PedidoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Protocol != 123 {
		t.Errorf("protocol = %d", resp.Protocol)
	}
}

func TestListPrePedidos(t *testing.T) {
	store := openTestStore(t)
	if err := store.ReplaceOrgaos([]string{"Secretaria de Teste"}); err != nil {
		t.Fatalf("seed orgaos: %v", err)
	}
	router := pedidoRouter(t, store)

	postJSON(router, "/pedidos", dto.CreatePedidoRequest{
		Author: "alice", Text: "texto", Orgao: "Secretaria de Teste",
	})

	rec := getJSON(router, "/prepedidos")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp dto.PrePedidosResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.PrePedidos) != 1 || resp.PrePedidos[0].Author != "alice" {
		t.Errorf("prepedidos = %+v", resp.PrePedidos)
	}
}
