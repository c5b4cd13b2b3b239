package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookDispatcher tries the customer's live WebSocket session first and
// falls back to POSTing the update to a notification webhook, so a customer
// who closed the tab still gets the push through the external notifier.
type WebhookDispatcher struct {
	Endpoint string
	Key      string
	Client   *http.Client
	WS       *WSRegistry
}

func NewWebhookDispatcher(endpoint, key string, ws *WSRegistry) *WebhookDispatcher {
	return &WebhookDispatcher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (d *WebhookDispatcher) Notify(orderID uuid.UUID, update StatusUpdate) error {
	if d.WS != nil {
		if err := d.WS.Notify(orderID, update); err == nil {
			return nil
		} else if !errors.Is(err, ErrNoSession) {
			// stale socket: fall through to the webhook
			d.WS.Remove(orderID)
		}
	}
	if d.Endpoint == "" {
		return ErrNoSession
	}

	b, err := json.Marshal(update)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, d.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Key != "" {
		req.Header.Set("Authorization", "Bearer "+d.Key)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook status %d", resp.StatusCode)
	}
	return nil
}
