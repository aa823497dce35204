package storage

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/config"
	"github.com/esiclivre/esic-api/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, log)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return store
}

func TestProcessPrePedidoIsAtomic(t *testing.T) {
	store := openTestStore(t)

	author, err := store.GetOrCreateAuthor("alice")
	if err != nil {
		t.Fatalf("author: %v", err)
	}
	pp := &models.PrePedido{AuthorID: author.ID, OrgaoName: "Secretaria A", Text: "texto", Keywords: "a,b"}
	if err := store.CreatePrePedido(pp); err != nil {
		t.Fatalf("create prepedido: %v", err)
	}

	deadline := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	pedido := &models.Pedido{
		Protocol:    100,
		AuthorID:    author.ID,
		OrgaoName:   pp.OrgaoName,
		Description: pp.Text,
		Deadline:    &deadline,
	}
	if err := store.ProcessPrePedido(pp, pedido); err != nil {
		t.Fatalf("process prepedido: %v", err)
	}

	got, err := store.PedidoByProtocol(100)
	if err != nil {
		t.Fatalf("pedido: %v", err)
	}
	if len(got.Keywords) != 2 {
		t.Errorf("keywords = %d, want 2", len(got.Keywords))
	}

	pending, err := store.PendingPrePedidos()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d after processing, want 0", len(pending))
	}
}

func TestAppendMessagesDeduplicates(t *testing.T) {
	store := openTestStore(t)

	pedido := &models.Pedido{Protocol: 1}
	if err := store.CreateRecoveredPedido(pedido, "esiclivre"); err != nil {
		t.Fatalf("create pedido: %v", err)
	}

	date := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{Situation: "Aberto", Justification: "", Responsible: "SIC", Date: &date},
		{Situation: "Aberto", Justification: "outra", Responsible: "SIC", Date: &date},
	}

	added, err := store.AppendMessages(pedido.ID, msgs)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	// Replaying the same page adds nothing; the identity is the full
	// tuple, so the empty justification does not collide.
	added, err = store.AppendMessages(pedido.ID, msgs)
	if err != nil {
		t.Fatalf("append replay: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d on replay, want 0", added)
	}
}

func TestReplaceOrgaosIsWholesale(t *testing.T) {
	store := openTestStore(t)

	if err := store.ReplaceOrgaos([]string{"B", "A"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.ReplaceOrgaos([]string{"C"}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	names, err := store.ListOrgaos()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "C" {
		t.Errorf("orgaos = %v, want [C]", names)
	}

	exists, err := store.OrgaoExists("A")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("stale orgao survived the replace")
	}
}

func TestSyncCheckpointRoundTrip(t *testing.T) {
	store := openTestStore(t)

	last, err := store.LastSync("pedidos")
	if err != nil {
		t.Fatalf("last sync: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("fresh checkpoint = %v, want zero", last)
	}

	first := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	if err := store.MarkSynced("pedidos", first); err != nil {
		t.Fatalf("mark: %v", err)
	}
	second := first.AddDate(0, 0, 1)
	if err := store.MarkSynced("pedidos", second); err != nil {
		t.Fatalf("remark: %v", err)
	}

	last, err = store.LastSync("pedidos")
	if err != nil {
		t.Fatalf("last sync: %v", err)
	}
	if !last.Equal(second) {
		t.Errorf("last = %v, want %v", last, second)
	}

	// Kinds are independent.
	other, err := store.LastSync("orgaos")
	if err != nil {
		t.Fatalf("other kind: %v", err)
	}
	if !other.IsZero() {
		t.Errorf("orgaos checkpoint = %v, want zero", other)
	}
}

func TestPedidosByKeywordNewestFirst(t *testing.T) {
	store := openTestStore(t)

	kw, err := store.GetOrCreateKeyword("arvores")
	if err != nil {
		t.Fatalf("keyword: %v", err)
	}
	author, err := store.GetOrCreateAuthor("alice")
	if err != nil {
		t.Fatalf("author: %v", err)
	}

	older := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i, date := range []time.Time{older, newer} {
		d := date
		pedido := &models.Pedido{
			Protocol:    200 + i,
			AuthorID:    author.ID,
			RequestDate: &d,
			Keywords:    []models.Keyword{*kw},
		}
		if err := store.SavePedido(pedido); err != nil {
			t.Fatalf("save pedido: %v", err)
		}
	}

	pedidos, err := store.PedidosByKeyword("arvores")
	if err != nil {
		t.Fatalf("by keyword: %v", err)
	}
	if len(pedidos) != 2 {
		t.Fatalf("pedidos = %d, want 2", len(pedidos))
	}
	if pedidos[0].Protocol != 201 {
		t.Errorf("first protocol = %d, want the newer request", pedidos[0].Protocol)
	}

	missing, err := store.PedidosByKeyword("nada")
	if err != nil {
		t.Fatalf("missing keyword: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("unknown keyword returned %d pedidos", len(missing))
	}
}

func TestAttachmentUpsertByName(t *testing.T) {
	store := openTestStore(t)

	pedido := &models.Pedido{Protocol: 300}
	if err := store.CreateRecoveredPedido(pedido, "esiclivre"); err != nil {
		t.Fatalf("create pedido: %v", err)
	}

	none, err := store.AttachmentByName(pedido.ID, "resposta.pdf")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if none != nil {
		t.Fatal("expected nil for unknown attachment")
	}

	date := time.Date(2026, 3, 21, 14, 0, 0, 0, time.UTC)
	att := &models.Attachment{PedidoID: pedido.ID, Name: "resposta.pdf", PortalDate: &date}
	if err := store.SaveAttachment(att); err != nil {
		t.Fatalf("save: %v", err)
	}

	later := date.AddDate(0, 0, 3)
	att.PortalDate = &later
	att.ArchiveURL = "https://archive.test/resposta.pdf"
	if err := store.SaveAttachment(att); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.AttachmentByName(pedido.ID, "resposta.pdf")
	if err != nil || got == nil {
		t.Fatalf("lookup after update: %v", err)
	}
	if !got.PortalDate.Equal(later) || got.ArchiveURL == "" {
		t.Errorf("attachment not updated in place: %+v", got)
	}
}
