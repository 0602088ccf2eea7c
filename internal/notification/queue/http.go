package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/subdesklabs/subdesk/internal/config"
	"github.com/subdesklabs/subdesk/internal/notification/domain"
	"go.uber.org/zap"
)

type httpQueue struct {
	url    string
	token  string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPQueue(cfg config.Config, log *zap.Logger) domain.Queue {
	return &httpQueue{
		url:    cfg.QueueDispatchURL,
		token:  cfg.QueueToken,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("notification.queue"),
	}
}

type enqueueRequest struct {
	NotificationID string    `json:"notification_id"`
	NotBefore      time.Time `json:"not_before"`
}

type enqueueResponse struct {
	MessageID string `json:"message_id"`
}

// Enqueue hands the notification id to the push queue; the queue calls the
// dispatch endpoint back at or after notBefore with the message id it returns
// here.
func (q *httpQueue) Enqueue(ctx context.Context, notificationID snowflake.ID, notBefore time.Time) (string, error) {
	body, err := json.Marshal(enqueueRequest{
		NotificationID: notificationID.String(),
		NotBefore:      notBefore.UTC(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+q.token)

	resp, err := q.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("queue enqueue returned %d", resp.StatusCode)
	}

	var out enqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}
