package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/scanner"
)

// Key aliases seen across public decision feeds.
var (
	feedContainers  = []string{"data", "events", "results", "items", "records"}
	tickerKeys      = []string{"ticker", "symbol"}
	companyKeys     = []string{"company", "companyName", "company_name", "sponsor"}
	drugKeys        = []string{"drug", "drugName", "drug_name", "product", "name"}
	dateKeys        = []string{"pdufaDate", "pdufa_date", "targetDate", "target_date", "catalystDate", "catalyst_date", "date"}
	indicationKeys  = []string{"indication", "disease"}
	descriptionKeys = []string{"description", "notes", "note", "event"}
	updatedKeys     = []string{"updatedAt", "updated_at", "lastUpdated", "last_updated"}
)

// FeedScanner reads decision events from a JSON endpoint.
type FeedScanner struct {
	client *http.Client
	logger *zap.Logger
}

// NewFeedScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewFeedScanner(client *http.Client, logger *zap.Logger) *FeedScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedScanner{client: defaultClient(client), logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return "feed"
}

// Scan decodes either a top-level array or an object wrapping one.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url configured for site %s", req.SiteName)
	}

	body, err := fetch(ctx, f.client, req.URL, "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var payload any
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	items, err := feedItems(payload, req.Option("path", ""))
	if err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0, len(items))
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, domain.FeedItem{
			SourceID:    req.SiteName,
			FetchedAt:   req.Now,
			Ticker:      firstString(obj, tickerKeys),
			Company:     firstString(obj, companyKeys),
			Drug:        firstString(obj, drugKeys),
			Date:        firstString(obj, dateKeys),
			Indication:  firstString(obj, indicationKeys),
			Description: firstString(obj, descriptionKeys),
			UpdatedAt:   firstString(obj, updatedKeys),
		})
	}

	f.logger.Debug("feed scanned", zap.String("site", req.SiteName), zap.Int("items", len(records)))
	return records, nil
}

func feedItems(payload any, path string) ([]any, error) {
	switch v := payload.(type) {
	case []any:
		return v, nil
	case map[string]any:
		keys := feedContainers
		if path != "" {
			keys = []string{path}
		}
		for _, key := range keys {
			if items, ok := v[key].([]any); ok {
				return items, nil
			}
		}
		return nil, fmt.Errorf("feed object has no item list (tried %s)", strings.Join(keys, ", "))
	default:
		return nil, fmt.Errorf("unexpected feed payload %T", payload)
	}
}

func firstString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}
