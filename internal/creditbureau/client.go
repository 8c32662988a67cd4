package creditbureau

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrApplicantNotFound means the bureau has no file for the applicant.
// Retrying cannot help; callers should treat it as a permanent failure.
var ErrApplicantNotFound = errors.New("credit bureau: applicant not found")

// ErrTransient covers timeouts, rate limits and bureau-side outages.
var ErrTransient = errors.New("credit bureau: transient failure")

type Client interface {
	FetchCreditReport(ctx context.Context, req ReportRequest) (CreditReport, error)
}

type ReportRequest struct {
	ApplicantName string        `json:"applicant_name"`
	Email         string        `json:"email"`
	Timeout       time.Duration `json:"-"`
}

type CreditReport struct {
	CreditScore        int     `json:"credit_score"`
	MonthlyDebt        float64 `json:"monthly_debt"`
	OpenAccounts       int     `json:"open_accounts"`
	DelinquentAccounts int     `json:"delinquent_accounts"`
}

type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type reportResponse struct {
	CreditReport
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) FetchCreditReport(ctx context.Context, req ReportRequest) (CreditReport, error) {
	if c.baseURL == "" {
		return CreditReport{}, fmt.Errorf("CREDIT_BUREAU_URL is required")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return CreditReport{}, err
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/credit-reports", bytes.NewReader(body))
	if err != nil {
		return CreditReport{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CreditReport{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CreditReport{}, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return CreditReport{}, ErrApplicantNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return CreditReport{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return CreditReport{}, fmt.Errorf("credit bureau request failed with status %d", resp.StatusCode)
	}

	var parsed reportResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CreditReport{}, fmt.Errorf("unable to parse bureau response: %w", err)
	}
	if parsed.Error != "" {
		return CreditReport{}, fmt.Errorf("credit bureau request failed: %s", parsed.Error)
	}
	if parsed.CreditScore <= 0 {
		return CreditReport{}, fmt.Errorf("credit bureau returned empty report")
	}
	return parsed.CreditReport, nil
}
