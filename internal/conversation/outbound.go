package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppSender delivers replies through the WhatsApp Cloud API.
type WhatsAppSender struct {
	baseURL     string
	accessToken string
	// senderIDs maps pharmacyID to the business phone_number_id that
	// messages for that tenant are sent from.
	senderIDs  map[string]string
	httpClient *http.Client
}

type WhatsAppSenderConfig struct {
	BaseURL     string // e.g. "https://graph.facebook.com/v19.0"
	AccessToken string
	SenderIDs   map[string]string
	Timeout     time.Duration
}

func NewWhatsAppSender(cfg WhatsAppSenderConfig) (*WhatsAppSender, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("conversation: whatsapp BaseURL is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("conversation: whatsapp AccessToken is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &WhatsAppSender{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		senderIDs:   cfg.SenderIDs,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SendText sends a plain text message to the customer.
func (s *WhatsAppSender) SendText(ctx context.Context, pharmacyID, phone, text string) error {
	senderID, ok := s.senderIDs[pharmacyID]
	if !ok {
		return fmt.Errorf("conversation: no whatsapp sender for pharmacy %s", pharmacyID)
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal outbound message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, senderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("conversation: failed to create outbound request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("conversation: outbound request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("conversation: whatsapp API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
