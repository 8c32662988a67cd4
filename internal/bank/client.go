package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TransferStatus is the bank-side outcome of a transfer call. A PENDING
// status means the bank accepted the request but has not settled it yet.
type TransferStatus string

const (
	TransferSuccess TransferStatus = "SUCCESS"
	TransferFailed  TransferStatus = "FAILED"
	TransferPending TransferStatus = "PENDING"
)

type Client interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	GetTransferStatus(ctx context.Context, transactionID string) (TransferResult, error)
	ReverseTransfer(ctx context.Context, transactionID string) (TransferResult, error)
	CancelTransfer(ctx context.Context, transactionID string) (TransferResult, error)
}

type TransferRequest struct {
	TransactionID string  `json:"transaction_id"`
	BankAccount   string  `json:"bank_account"`
	Amount        float64 `json:"amount"`
	Reference     string  `json:"reference"`
}

type TransferResult struct {
	TransactionID string         `json:"transaction_id"`
	Status        TransferStatus `json:"status"`
	Reason        string         `json:"reason,omitempty"`
}

type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	return c.post(ctx, "/v1/transfers", req)
}

func (c *HTTPClient) GetTransferStatus(ctx context.Context, transactionID string) (TransferResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		fmt.Sprintf("%s/v1/transfers/%s", c.baseURL, transactionID), nil)
	if err != nil {
		return TransferResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.do(httpReq)
}

func (c *HTTPClient) ReverseTransfer(ctx context.Context, transactionID string) (TransferResult, error) {
	return c.post(ctx, fmt.Sprintf("/v1/transfers/%s/reverse", transactionID), nil)
}

func (c *HTTPClient) CancelTransfer(ctx context.Context, transactionID string) (TransferResult, error) {
	return c.post(ctx, fmt.Sprintf("/v1/transfers/%s/cancel", transactionID), nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) (TransferResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return TransferResult{}, err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return TransferResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq)
}

type transferResponse struct {
	TransferResult
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) do(req *http.Request) (TransferResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TransferResult{}, fmt.Errorf("bank request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransferResult{}, fmt.Errorf("bank response: %w", err)
	}

	var parsed transferResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return TransferResult{}, fmt.Errorf("unable to parse bank response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if parsed.Error != "" {
			return TransferResult{}, fmt.Errorf("bank request failed: %s", parsed.Error)
		}
		return TransferResult{}, fmt.Errorf("bank request failed with status %d", resp.StatusCode)
	}
	return parsed.TransferResult, nil
}
