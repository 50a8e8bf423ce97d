package parser

import (
	"context"
	"strings"
	"testing"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/scanner"
)

func TestAnnouncementScannerFiltersByKeyword(t *testing.T) {
	t.Parallel()

	srv := serveHTML(t, `
	<html><body>
	  <article>
	    <h2><a href="/news/acme-pdufa">Acme Therapeutics Announces FDA Acceptance of NDA for Zyvorin</a></h2>
	    <p>The FDA assigned a PDUFA target action date of March 15, 2025.</p>
	    <time datetime="2024-11-02T12:00:00Z">Nov 2</time>
	  </article>
	  <article>
	    <h2><a href="https://other.example/q3">Beta Bio Reports Third Quarter Results</a></h2>
	    <p>Revenue grew.</p>
	  </article>
	  <article><p>PDUFA without a headline</p></article>
	</body></html>`)

	s := NewAnnouncementScanner(srv.Client(), nil)
	records, err := s.Scan(context.Background(), scanner.Request{SiteName: "globenewswire", URL: srv.URL})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 announcement, got %d", len(records))
	}

	a := records[0].(domain.Announcement)
	if !strings.HasPrefix(a.Headline, "Acme Therapeutics Announces") {
		t.Fatalf("unexpected headline %q", a.Headline)
	}
	if !strings.Contains(a.Summary, "March 15, 2025") {
		t.Fatalf("unexpected summary %q", a.Summary)
	}
	if a.URL != srv.URL+"/news/acme-pdufa" {
		t.Fatalf("link not resolved: %q", a.URL)
	}
	if a.Published != "2024-11-02T12:00:00Z" {
		t.Fatalf("unexpected published %q", a.Published)
	}
}

func TestAnnouncementScannerWildcardKeyword(t *testing.T) {
	t.Parallel()

	srv := serveHTML(t, `
	<ul>
	  <li class="row"><a href="/a">First release</a><span>text</span></li>
	  <li class="row"><a href="/b">Second release</a><span>text</span></li>
	</ul>`)

	s := NewAnnouncementScanner(srv.Client(), nil)
	records, err := s.Scan(context.Background(), scanner.Request{
		SiteName: "wire",
		URL:      srv.URL,
		Options:  map[string]string{"item": "li.row", "headline": "a", "summary": "span", "keyword": "*"},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(records))
	}
}
