package esic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Portal element ids on the pedido detail view.
const (
	detailTableID      = "ctl00_MainContent_dtv_pedido"
	historyTableID     = "ctl00_MainContent_grid_historico"
	attachmentsTableID = "ctl00_MainContent_grid_anexos_resposta"
	situationFieldID   = "fildSetSituacao"
	pedidoGridID       = "ctl00_MainContent_grid_pedido"
)

// ParsedPedido is everything the detail view exposes about one record.
type ParsedPedido struct {
	Protocol      int
	Interessado   string
	RequestDate   *time.Time
	Orgao         string
	ContactOption string
	Description   string
	Situation     string
	History       []ParsedMessage
	Attachments   []ParsedAttachment
}

// ParsedMessage is one row of the history table.
type ParsedMessage struct {
	Situation     string
	Justification string
	Responsible   string
	Date          *time.Time
}

// ParsedAttachment is one row of the response attachments table. Name
// is already sanitized.
type ParsedAttachment struct {
	Name      string
	CreatedAt *time.Time
}

// Parser extracts pedido data from portal HTML.
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a parser.
func NewParser(logger *logrus.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParsePedidoPage parses a detail page. Returns nil (and no error)
// when the page carries no detail table, which the portal serves
// intermittently; callers skip such records and move on.
func (p *Parser) ParsePedidoPage(html string) (*ParsedPedido, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	details := doc.Find("#" + detailTableID)
	if details.Length() == 0 {
		return nil, nil
	}

	rows := details.Find("tr")
	if rows.Length() < 6 {
		return nil, fmt.Errorf("detail table has %d rows, want 6", rows.Length())
	}

	pedido := &ParsedPedido{}

	protocolText := rowValue(rows, 0)
	protocol, err := strconv.Atoi(strings.TrimSpace(protocolText))
	if err != nil {
		return nil, fmt.Errorf("parse protocol %q: %w", protocolText, err)
	}
	pedido.Protocol = protocol
	pedido.Interessado = rowValue(rows, 1)
	if date, err := parseDate(rowValue(rows, 2)); err == nil {
		pedido.RequestDate = &date
	}
	pedido.Orgao = rowValue(rows, 3)
	pedido.ContactOption = rowValue(rows, 4)
	pedido.Description = rowValue(rows, 5)

	pedido.Situation = p.parseSituation(doc)
	pedido.History = p.parseHistory(doc, protocol)
	pedido.Attachments = p.parseAttachments(doc)

	return pedido, nil
}

// rowValue returns the trimmed text of the second cell of row i. Every
// detail row is a (label, value) pair.
func rowValue(rows *goquery.Selection, i int) string {
	cells := rows.Eq(i).Find("td")
	if cells.Length() < 2 {
		return ""
	}
	return strings.TrimSpace(cells.Eq(1).Text())
}

func (p *Parser) parseSituation(doc *goquery.Document) string {
	cells := doc.Find("#" + situationFieldID).Find("tr").Eq(0).Find("td")
	if cells.Length() < 2 {
		return ""
	}
	return strings.TrimSpace(cells.Eq(1).Text())
}

// parseHistory reads the history table minus its header row. Rows sort
// ascending by date; if any timestamp fails to parse the source order
// is kept so a bad row cannot scramble the rest.
func (p *Parser) parseHistory(doc *goquery.Document, protocol int) []ParsedMessage {
	var msgs []ParsedMessage
	sortable := true

	doc.Find("#"+historyTableID).Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		msg := ParsedMessage{
			Situation:     strings.TrimSpace(cells.Eq(1).Text()),
			Justification: strings.TrimSpace(cells.Eq(2).Text()),
			Responsible:   strings.TrimSpace(cells.Eq(3).Text()),
		}
		dateText := strings.TrimSpace(row.Find("span").First().Text())
		if date, err := parseDate(dateText); err == nil {
			msg.Date = &date
		} else {
			sortable = false
		}
		msgs = append(msgs, msg)
	})

	if sortable {
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].Date.Before(*msgs[j].Date)
		})
	} else if len(msgs) > 0 {
		p.logger.WithFields(logrus.Fields{
			"component": "parser",
			"protocol":  protocol,
		}).Warn("Unparseable history timestamp, keeping source order")
	}
	return msgs
}

// parseAttachments reads the optional attachments table. An absent
// table or one with only blank rows means no attachments.
func (p *Parser) parseAttachments(doc *goquery.Document) []ParsedAttachment {
	var atts []ParsedAttachment
	doc.Find("#"+attachmentsTableID).Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name := SanitizeAttachmentName(cells.Eq(0).Text())
		if name == "" {
			return
		}
		att := ParsedAttachment{Name: name}
		if date, err := parseDate(strings.TrimSpace(cells.Eq(1).Text())); err == nil {
			att.CreatedAt = &date
		}
		atts = append(atts, att)
	})
	return atts
}

// SanitizeAttachmentName lowercases the name and strips everything
// outside [a-z0-9.-_], matching how downloaded files get renamed on
// disk so names stay joinable.
func SanitizeAttachmentName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseDate parses the portal's day-first timestamps.
func parseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	layouts := []string{
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"02/01/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}
