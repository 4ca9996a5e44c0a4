// Package zrpc is a thin typed client for the chain node's JSON-RPC
// interface. It performs no retries and keeps no state besides connection
// configuration; retry policy belongs to the callers.
package zrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ANY_TADDR lets the node pick funding inputs for outbound transfers.
const defaultSource = "ANY_TADDR"

type Client struct {
	url      string
	user     string
	password string
	http     *http.Client
}

func NewClient(url, user, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:      url,
		user:     user,
		password: password,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// rpcAmount marshals as a bare JSON number; the node rejects quoted amounts.
type rpcAmount struct {
	decimal.Decimal
}

func (a rpcAmount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// Call performs one JSON-RPC round trip. Transport failures come back as
// *ConnectionError, non-2xx answers as *TransportError and node-reported
// errors as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{StatusCode: resp.StatusCode}
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%s returned empty result", method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// NewAddress generates a fresh shielded receiving address. The node never
// hands out the same address twice; the store's unique index is the backstop.
func (c *Client) NewAddress(ctx context.Context) (string, error) {
	var address string
	if err := c.Call(ctx, "z_getnewaddress", []interface{}{}, &address); err != nil {
		return "", err
	}
	return address, nil
}

// ReceivedAt lists payments received at the address with at least minConf
// confirmations.
func (c *Client) ReceivedAt(ctx context.Context, address string, minConf int) ([]Receipt, error) {
	var receipts []Receipt
	params := []interface{}{address, minConf}
	if err := c.Call(ctx, "z_listreceivedbyaddress", params, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

// SubmitTransfer queues an outbound transfer and returns the operation
// handle. It does not wait for the transfer to execute.
func (c *Client) SubmitTransfer(ctx context.Context, destination string, amount, fee decimal.Decimal) (string, error) {
	recipients := []map[string]interface{}{
		{"address": destination, "amount": rpcAmount{amount}},
	}
	params := []interface{}{defaultSource, recipients, 1, rpcAmount{fee}}

	var operationID string
	if err := c.Call(ctx, "z_sendmany", params, &operationID); err != nil {
		return "", err
	}
	return operationID, nil
}

// OperationStatus fetches the current status of an asynchronous operation.
func (c *Client) OperationStatus(ctx context.Context, operationID string) (OperationStatus, error) {
	var statuses []OperationStatus
	params := []interface{}{[]string{operationID}}
	if err := c.Call(ctx, "z_getoperationstatus", params, &statuses); err != nil {
		return OperationStatus{}, err
	}
	if len(statuses) == 0 {
		return OperationStatus{}, fmt.Errorf("node knows no operation %s", operationID)
	}
	return statuses[0], nil
}

// PollUntilTerminal polls the operation until it reaches success or failed,
// sleeping interval between attempts. After maxAttempts non-terminal
// observations it returns *TimeoutError; the operation outcome is then
// unknown, not failed.
func (c *Client) PollUntilTerminal(ctx context.Context, operationID string, maxAttempts int, interval time.Duration) (OperationStatus, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return OperationStatus{}, ctx.Err()
			case <-timer.C:
			}
		}

		status, err := c.OperationStatus(ctx, operationID)
		if err != nil {
			return OperationStatus{}, err
		}
		if status.Terminal() {
			return status, nil
		}
	}

	return OperationStatus{}, &TimeoutError{OperationID: operationID, Attempts: maxAttempts}
}

// ValidateAddress asks the node whether the address is well-formed.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	var result struct {
		IsValid bool `json:"isvalid"`
	}
	if err := c.Call(ctx, "z_validateaddress", []interface{}{address}, &result); err != nil {
		return false, err
	}
	return result.IsValid, nil
}

// Info reports chain name and height for health checks.
func (c *Client) Info(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	if err := c.Call(ctx, "getblockchaininfo", []interface{}{}, &info); err != nil {
		return ChainInfo{}, err
	}
	return info, nil
}
