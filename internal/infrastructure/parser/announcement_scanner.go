package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/scanner"
)

// AnnouncementScanner collects press-release snippets that mention a PDUFA
// date. Extraction of the structured fields happens in the normalizer.
//
// Options: item, headline, summary (CSS selectors) and keyword (default
// "PDUFA", "*" keeps every item).
type AnnouncementScanner struct {
	client *http.Client
	logger *zap.Logger
}

// NewAnnouncementScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewAnnouncementScanner(client *http.Client, logger *zap.Logger) *AnnouncementScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementScanner{client: defaultClient(client), logger: logger}
}

// Name identifies the strategy inside the registry.
func (a *AnnouncementScanner) Name() string {
	return "announcements"
}

// Scan returns one Announcement per listing item containing the keyword.
func (a *AnnouncementScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url configured for site %s", req.SiteName)
	}

	doc, err := fetchDocument(ctx, a.client, req.URL)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(req.URL)
	keyword := strings.ToUpper(req.Option("keyword", "PDUFA"))
	itemSel := req.Option("item", "article")
	headlineSel := req.Option("headline", "h1, h2, h3, a")
	summarySel := req.Option("summary", "p")

	var records []domain.RawRecord
	doc.Find(itemSel).Each(func(_ int, item *goquery.Selection) {
		headlineNode := item.Find(headlineSel).First()
		headline := strings.TrimSpace(headlineNode.Text())
		summary := strings.TrimSpace(item.Find(summarySel).First().Text())
		if headline == "" {
			return
		}
		if keyword != "*" && !strings.Contains(strings.ToUpper(headline+" "+summary), keyword) {
			return
		}

		link, _ := item.Find("a[href]").First().Attr("href")
		published, _ := item.Find("time").First().Attr("datetime")

		records = append(records, domain.Announcement{
			SourceID:  req.SiteName,
			FetchedAt: req.Now,
			Headline:  headline,
			Summary:   summary,
			URL:       absoluteURL(base, link),
			Published: published,
		})
	})

	a.logger.Debug("announcements scanned", zap.String("site", req.SiteName), zap.Int("items", len(records)))
	return records, nil
}

func absoluteURL(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
