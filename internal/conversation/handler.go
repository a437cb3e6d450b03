package conversation

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// whatsappWebhook mirrors the WhatsApp Cloud API inbound payload, trimmed to
// the fields the pipeline consumes.
type whatsappWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WebhookHandler terminates the WhatsApp Cloud API webhook. Inbound messages
// are enqueued and acknowledged immediately; processing happens in the worker.
type WebhookHandler struct {
	publisher   *Publisher
	verifyToken string
	// pharmacies maps the WhatsApp business phone_number_id to the tenant
	// that owns it.
	pharmacies      map[string]string
	defaultPharmacy string
	logger          *logging.Logger
}

type WebhookConfig struct {
	Publisher       *Publisher
	VerifyToken     string
	Pharmacies      map[string]string
	DefaultPharmacy string
	Logger          *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Publisher == nil {
		panic("conversation: publisher cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		publisher:       cfg.Publisher,
		verifyToken:     cfg.VerifyToken,
		pharmacies:      cfg.Pharmacies,
		defaultPharmacy: cfg.DefaultPharmacy,
		logger:          cfg.Logger,
	}
}

// HandleVerify answers the Cloud API subscription challenge.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

// HandleInbound accepts message webhooks. Always returns 200 once the payload
// parses: WhatsApp retries non-2xx responses and the queue already owns
// delivery from here.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var payload whatsappWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("unparseable whatsapp webhook", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			pharmacyID := h.resolvePharmacy(change.Value.Metadata.PhoneNumberID)
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				receivedAt := parseWhatsAppTimestamp(msg.Timestamp)
				if err := h.publisher.PublishTurn(r.Context(), pharmacyID, msg.From, msg.Text.Body, msg.ID, receivedAt); err != nil {
					h.logger.Error("failed to enqueue inbound message",
						"error", err,
						"pharmacy_id", pharmacyID,
						"message_id", msg.ID,
					)
				}
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

// HealthCheck reports liveness.
func (h *WebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *WebhookHandler) resolvePharmacy(phoneNumberID string) string {
	if id, ok := h.pharmacies[phoneNumberID]; ok {
		return id
	}
	return h.defaultPharmacy
}

func parseWhatsAppTimestamp(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
