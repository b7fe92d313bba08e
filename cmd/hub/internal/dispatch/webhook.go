package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// appendPriceMsg is the envelope subscribers receive. Receivers must treat
// it as idempotent: the same round's price may arrive more than once.
type appendPriceMsg struct {
	AppendPrice appendPriceBody `json:"append_price"`
}

type appendPriceBody struct {
	Key       string `json:"key"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// Compile-time check to ensure WebhookDeliverer implements Deliverer
var _ Deliverer = (*WebhookDeliverer)(nil)

// WebhookDeliverer pushes append_price calls to subscriber HTTP endpoints.
type WebhookDeliverer struct {
	client *http.Client
}

func NewWebhookDeliverer(client *http.Client) *WebhookDeliverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookDeliverer{client: client}
}

func (w *WebhookDeliverer) Deliver(ctx context.Context, sub models.Subscriber, record models.PriceRecord) error {
	payload, err := json.Marshal(appendPriceMsg{
		AppendPrice: appendPriceBody{
			Key:       record.Key,
			Price:     record.Price,
			Timestamp: fmt.Sprintf("%d", record.Timestamp),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal append_price: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", sub.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sub.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("subscriber %s rejected append_price: status %d", sub.Name, resp.StatusCode)
	}
	return nil
}
