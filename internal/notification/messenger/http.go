package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/notification/domain"
	"go.uber.org/zap"
)

type httpMessenger struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPMessenger(cfg config.Config, log *zap.Logger) domain.Messenger {
	return &httpMessenger{
		url:    cfg.MessengerURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("notification.messenger"),
	}
}

type sendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (m *httpMessenger) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("messenger returned %d", resp.StatusCode)
	}
	return nil
}
