package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
)

const (
	channelName    = "telegram"
	defaultAPIBase = "https://api.telegram.org"
)

// Notifier sends alerts to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	logger   *zap.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, client *http.Client, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   client,
		logger:   logger.Named(channelName),
	}
}

// Name identifies the channel.
func (n *Notifier) Name() string {
	return channelName
}

type apiReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Notify posts the alert as a plain-text message.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram notifier %w: bot token and chat id are required", domain.ErrMisconfigured)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", alert.Text())
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w: %w", domain.ErrMisconfigured, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("do request: %w", uerr.Err)
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		n.logger.Debug("alert delivered", zap.String("event", alert.Record.EventKey().String()))
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	var reply apiReply
	_ = json.Unmarshal(raw, &reply)
	return &domain.StatusError{
		Channel:    channelName,
		StatusCode: resp.StatusCode,
		RetryAfter: time.Duration(reply.Parameters.RetryAfter) * time.Second,
		Body:       reply.Description,
	}
}
