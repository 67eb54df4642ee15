// Package email delivers transactional mail through the Resend HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sender is the outbound channel the OTP engine depends on.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("email: not configured (missing RESEND_API_KEY)")

type ResendSender struct {
	apiKey  string
	baseURL string
	from    string
	http    *http.Client
}

func NewResendSender(apiKey, baseURL, from string) *ResendSender {
	return &ResendSender{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		from:    from,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send posts one message. Any non-2xx response is an error carrying the
// provider's message when it sent one.
func (s *ResendSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if s.apiKey == "" {
		return ErrNotConfigured
	}

	b, err := json.Marshal(sendRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("email: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("email: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("email: sending: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var out struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &out) == nil && out.Message != "" {
			return fmt.Errorf("email: provider returned %d: %s", resp.StatusCode, out.Message)
		}
		return fmt.Errorf("email: provider returned %s", resp.Status)
	}
	return nil
}

// OTPSubject is the subject line of verification emails.
const OTPSubject = "Your Convoy verification code"

// OTPBody renders the HTML body of a verification email.
func OTPBody(code string, expiresInMinutes int) string {
	return fmt.Sprintf(`<p>Your Convoy verification code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px;">%s</p>
<p>This code expires in %d minutes. If you didn't request this, you can ignore this email.</p>`,
		code, expiresInMinutes)
}
