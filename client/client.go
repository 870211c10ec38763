package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daverbj/solana-llm-integration/service/chat"
	"github.com/daverbj/solana-llm-integration/service/intent"
	"github.com/daverbj/solana-llm-integration/service/solana"
)

// AirdropRecord is a ledger entry returned by the history endpoint.
type AirdropRecord struct {
	Signature          string    `json:"signature"`
	Address            string    `json:"address"`
	RequestedLamports  int64     `json:"requested_lamports"`
	InitialBalance     int64     `json:"initial_balance"`
	NewBalance         int64     `json:"new_balance"`
	Delta              int64     `json:"delta"`
	ConfirmationStatus string    `json:"confirmation_status"`
	Source             string    `json:"source"`
	CreatedAt          time.Time `json:"created_at"`
}

// WorkflowStatus is the state of a durable airdrop.
type WorkflowStatus struct {
	WorkflowID string                `json:"workflow_id"`
	Status     string                `json:"status"` // running, completed, failed, timed_out, canceled
	Stage      string                `json:"stage,omitempty"`
	Result     *solana.AirdropResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// ListAirdropsOptions filters and pages the airdrop history.
type ListAirdropsOptions struct {
	Address string
	Limit   int
	Offset  int
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the wallet assistant service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new wallet assistant client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// airdrops block until the credit is confirmed
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Balance reads the current balance of address.
func (c *Client) Balance(ctx context.Context, address string) (*solana.BalanceReading, error) {
	var reading solana.BalanceReading
	u := fmt.Sprintf("%s/api/v1/balance/%s", c.baseURL, url.PathEscape(address))
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &reading); err != nil {
		return nil, err
	}
	c.logger.Debug("balance read", "address", address, "lamports", reading.Lamports)
	return &reading, nil
}

// Airdrop requests amount SOL for address and waits for the result.
// A zero amount lets the server apply its default.
func (c *Client) Airdrop(ctx context.Context, address string, amount float64) (*solana.AirdropResult, error) {
	var result solana.AirdropResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/airdrop", airdropBody(address, amount), http.StatusOK, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("airdrop completed", "address", address, "signature", result.Signature)
	return &result, nil
}

// Intent resolves query into an Intent without running it.
func (c *Client) Intent(ctx context.Context, query string) (*intent.Intent, error) {
	var in intent.Intent
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/intent", map[string]string{"query": query}, http.StatusOK, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// Chat resolves query and runs the requested operation.
func (c *Client) Chat(ctx context.Context, query string) (*chat.Reply, error) {
	var reply chat.Reply
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", map[string]string{"query": query}, http.StatusOK, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListAirdrops returns recorded airdrops, newest first.
func (c *Client) ListAirdrops(ctx context.Context, opts ListAirdropsOptions) ([]*AirdropRecord, error) {
	params := url.Values{}
	if opts.Address != "" {
		params.Set("address", opts.Address)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	u := c.baseURL + "/api/v1/airdrops"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var resp struct {
		Airdrops []*AirdropRecord `json:"airdrops"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Airdrops, nil
}

// StartAirdropWorkflow starts a durable airdrop and returns its workflow ID.
func (c *Client) StartAirdropWorkflow(ctx context.Context, address string, amount float64) (string, error) {
	var resp struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/airdrop-workflows", airdropBody(address, amount), http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("airdrop workflow started", "address", address, "workflow_id", resp.WorkflowID)
	return resp.WorkflowID, nil
}

// AirdropWorkflowStatus returns the state of a durable airdrop.
func (c *Client) AirdropWorkflowStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	var status WorkflowStatus
	u := fmt.Sprintf("%s/api/v1/airdrop-workflows/%s", c.baseURL, url.PathEscape(workflowID))
	if err := c.do(ctx, http.MethodGet, u, nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func airdropBody(address string, amount float64) map[string]interface{} {
	body := map[string]interface{}{"address": address}
	if amount != 0 {
		body["amount"] = amount
	}
	return body
}

// do sends a JSON request and decodes a JSON response with the expected status into out.
func (c *Client) do(ctx context.Context, method, u string, reqBody interface{}, expected int, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
