package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/scanner"
)

// headerRoles maps header keywords to column roles; earlier entries win.
var headerRoles = []struct {
	role     string
	keywords []string
}{
	{domain.ColumnTicker, []string{"ticker", "symbol"}},
	{domain.ColumnDate, []string{"pdufa", "date", "catalyst"}},
	{domain.ColumnDrug, []string{"drug", "product", "candidate", "therapy"}},
	{domain.ColumnIndication, []string{"indication", "disease"}},
	{domain.ColumnCompany, []string{"company", "sponsor", "name"}},
	{domain.ColumnDescription, []string{"description", "note", "event", "status", "stage"}},
}

// CalendarScanner extracts decision rows from HTML calendar tables.
//
// Options:
//   - table: CSS selector of the table (default "table")
//   - columns: comma separated roles by position, used when the table has no
//     recognisable header row (e.g. "ticker,company,drug,date")
type CalendarScanner struct {
	client *http.Client
	logger *zap.Logger
}

// NewCalendarScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewCalendarScanner(client *http.Client, logger *zap.Logger) *CalendarScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarScanner{client: defaultClient(client), logger: logger}
}

// Name identifies the strategy inside the registry.
func (c *CalendarScanner) Name() string {
	return "calendar"
}

// Scan downloads the page and returns one CalendarRow per data row.
func (c *CalendarScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url configured for site %s", req.SiteName)
	}

	doc, err := fetchDocument(ctx, c.client, req.URL)
	if err != nil {
		return nil, err
	}

	table := doc.Find(req.Option("table", "table")).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table matching %q", req.Option("table", "table"))
	}

	roles := positionalRoles(req.Option("columns", ""))
	headerRow := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Find("th").Length() > 0
	}).First()
	if headerRow.Length() > 0 {
		if detected := detectRoles(headerRow); len(detected) > 0 {
			roles = detected
		}
	}
	if !hasRole(roles, domain.ColumnDate) {
		return nil, fmt.Errorf("cannot locate a date column in %s", req.URL)
	}

	var records []domain.RawRecord
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}

		row := domain.CalendarRow{SourceID: req.SiteName, FetchedAt: req.Now, Cells: map[string]string{}}
		cells.Each(func(i int, td *goquery.Selection) {
			role, ok := roles[i]
			if !ok {
				return
			}
			text := strings.Join(strings.Fields(td.Text()), " ")
			if existing := row.Cells[role]; existing != "" {
				text = existing + " " + text
			}
			row.Cells[role] = text
		})
		records = append(records, row)
	})

	c.logger.Debug("calendar scanned", zap.String("site", req.SiteName), zap.Int("rows", len(records)))
	return records, nil
}

func detectRoles(header *goquery.Selection) map[int]string {
	roles := map[int]string{}
	taken := map[string]bool{}
	header.Find("th").Each(func(i int, th *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(th.Text()))
		for _, candidate := range headerRoles {
			if taken[candidate.role] {
				continue
			}
			for _, kw := range candidate.keywords {
				if strings.Contains(text, kw) {
					roles[i] = candidate.role
					taken[candidate.role] = true
					return
				}
			}
		}
	})
	return roles
}

func positionalRoles(columns string) map[int]string {
	roles := map[int]string{}
	if strings.TrimSpace(columns) == "" {
		return roles
	}
	for i, part := range strings.Split(columns, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		roles[i] = part
	}
	return roles
}

func hasRole(roles map[int]string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
