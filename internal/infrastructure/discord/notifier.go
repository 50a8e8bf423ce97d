package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
)

const (
	channelName  = "discord"
	maxErrorBody = 1 << 10

	colorTest     = 0x95A5A6
	colorImminent = 0xE74C3C
	colorSoon     = 0xE67E22
	colorUpcoming = 0x3498DB
)

// Notifier posts alerts to a Discord channel webhook as embeds.
type Notifier struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     *zap.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook; a nil client gets a 10s timeout.
func NewNotifier(webhookURL, username string, client *http.Client, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		username:   username,
		client:     client,
		logger:     logger.Named(channelName),
	}
}

// Name identifies the channel.
func (n *Notifier) Name() string {
	return channelName
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Notify sends one alert. Non-2xx replies come back as *domain.StatusError.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	if n.webhookURL == "" {
		return fmt.Errorf("discord notifier %w: empty webhook url", domain.ErrMisconfigured)
	}

	body, err := json.Marshal(buildPayload(alert, n.username))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w: %w", domain.ErrMisconfigured, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		n.logger.Debug("alert delivered", zap.String("event", alert.Record.EventKey().String()))
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.StatusError{
		Channel:    channelName,
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter(resp.Header, snippet),
		Body:       strings.TrimSpace(string(snippet)),
	}
}

func buildPayload(alert domain.Alert, username string) webhookPayload {
	r := alert.Record
	fields := []embedField{
		{Name: "Company", Value: r.Company, Inline: true},
		{Name: "Drug", Value: r.Drug, Inline: true},
		{Name: "PDUFA Date", Value: r.PDUFADate.String(), Inline: true},
	}
	if r.Ticker != "" {
		fields = append(fields, embedField{Name: "Ticker", Value: "$" + r.Ticker, Inline: true})
	}
	fields = append(fields, embedField{Name: "Days Until", Value: strconv.Itoa(alert.DaysUntil), Inline: true})
	if r.Indication != "" {
		fields = append(fields, embedField{Name: "Indication", Value: r.Indication})
	}
	if len(r.Sources) > 0 {
		fields = append(fields, embedField{Name: "Sources", Value: strings.Join(r.Sources, ", ")})
	}

	e := embed{
		Title:       alert.Headline(),
		Description: r.Description,
		Color:       colorFor(alert),
		Fields:      fields,
		Footer:      &embedFooter{Text: "PDUFA Scanner"},
	}
	if !alert.CreatedAt.IsZero() {
		e.Timestamp = alert.CreatedAt.UTC().Format(time.RFC3339)
	}
	return webhookPayload{Username: username, Embeds: []embed{e}}
}

func colorFor(alert domain.Alert) int {
	switch {
	case alert.Test:
		return colorTest
	case alert.DaysUntil <= 1:
		return colorImminent
	case alert.DaysUntil <= 3:
		return colorSoon
	default:
		return colorUpcoming
	}
}

// retryAfter reads the Retry-After header (seconds) or, failing that, the
// retry_after field Discord puts in 429 bodies.
func retryAfter(h http.Header, body []byte) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	return 0
}
