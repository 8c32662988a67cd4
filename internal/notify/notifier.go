// Package notify delivers applicant-facing messages through an HTTP
// notification gateway. Every send is best-effort: callers log the boolean
// outcome and never fail the surrounding process on a delivery error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	KindApplicationConfirmation Kind = "APPLICATION_CONFIRMATION"
	KindApprovalNotification    Kind = "APPROVAL_NOTIFICATION"
	KindRejectionNotification   Kind = "REJECTION_NOTIFICATION"
	KindDisbursementConfirmed   Kind = "DISBURSEMENT_CONFIRMATION"
	KindFollowUpReminder        Kind = "FOLLOW_UP_REMINDER"
)

type Message struct {
	Kind          Kind   `json:"kind"`
	ApplicationID string `json:"application_id"`
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}

type Client interface {
	Send(ctx context.Context, msg Message) (bool, error)
}

type HTTPClient struct {
	webhookURL string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPClient(webhookURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		webhookURL: webhookURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (c *HTTPClient) Send(ctx context.Context, msg Message) (bool, error) {
	if c.webhookURL == "" {
		return false, fmt.Errorf("NOTIFY_WEBHOOK_URL is not configured")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}
	return true, nil
}
