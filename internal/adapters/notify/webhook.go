// Package notify delivers customer notifications (SMS gateway webhook or log).
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/platform/obs"
	"pharmacy-delivery-service/internal/ports"
)

type webhookPayload struct {
	Phone    string            `json:"phone"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// WebhookSender POSTs each message to an SMS gateway webhook. When a secret
// is set the body is signed with HMAC-SHA256 in the X-Signature header.
type WebhookSender struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{URL: url, Secret: secret, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (s *WebhookSender) Send(ctx context.Context, msg ports.Message) (err error) {
	defer obs.Time(ctx, "notify.Send")(&err)

	if strings.TrimSpace(msg.Phone) == "" {
		return fmt.Errorf("send %s: %w: phone number is empty", msg.Template, domain.ErrValidation)
	}

	body, err := json.Marshal(webhookPayload{Phone: msg.Phone, Template: string(msg.Template), Data: msg.Data})
	if err != nil {
		return fmt.Errorf("send %s: marshal payload: %w", msg.Template, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send %s: create request: %w", msg.Template, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	req.Header.Set("X-Event-Type", string(msg.Template))
	if s.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(s.Secret, body))
	}

	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w: %v", msg.Template, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send %s: %w: gateway returned %d", msg.Template, domain.ErrUpstream, resp.StatusCode)
	}
	return nil
}

// SignHMAC returns the lowercase hex HMAC-SHA256 of body.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex signature produced by SignHMAC.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	want, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// LogSender writes messages to the process log. Used when no gateway is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg ports.Message) error {
	log.Printf("req_id=%s op=notify.Send template=%s phone=%s data=%v", obs.RequestID(ctx), msg.Template, msg.Phone, msg.Data)
	return nil
}

var (
	_ ports.NotificationSender = (*WebhookSender)(nil)
	_ ports.NotificationSender = LogSender{}
)
