package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// SMSClient sends OTP codes over an HTTP SMS gateway.
type SMSClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSClient returns a client for the given gateway. baseURL is required.
func NewSMSClient(apiKey, baseURL, sender string) *SMSClient {
	return &SMSClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendCode sends the code to the given phone number. phone should be digits
// only (country code + number). Does not log the code.
func (c *SMSClient) SendCode(ctx context.Context, phone, code string) error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("sms: gateway not configured")
	}
	body := map[string]interface{}{
		"route":     "otp",
		"numbers":   phone,
		"variables": code,
		"sender":    c.Sender,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: gateway returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// SendAlert is not supported by the SMS gateway; alerts go through email
// collaborators. Always returns nil so alerting stays best-effort.
func (c *SMSClient) SendAlert(ctx context.Context, email, subject, body string) error {
	return nil
}
