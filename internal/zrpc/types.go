package zrpc

import "github.com/shopspring/decimal"

// Receipt is a single payment received at a shielded address.
type Receipt struct {
	TxID   string          `json:"txid"`
	Amount decimal.Decimal `json:"amount"`
}

// Operation statuses reported by the node for asynchronous calls.
const (
	OpQueued    = "queued"
	OpExecuting = "executing"
	OpSuccess   = "success"
	OpFailed    = "failed"
)

// OperationStatus is a point-in-time view of an asynchronous node operation.
type OperationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		TxID string `json:"txid"`
	} `json:"result"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Terminal reports whether the operation will change no further.
func (s OperationStatus) Terminal() bool {
	return s.Status == OpSuccess || s.Status == OpFailed
}

// ChainInfo is the subset of getblockchaininfo used for health reporting.
type ChainInfo struct {
	Chain  string `json:"chain"`
	Blocks int64  `json:"blocks"`
}
