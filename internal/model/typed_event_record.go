package model

import "encoding/json"

// TypedEventRecord is the JSON representation used for aggregation.
type TypedEventRecord struct {
	ChainID   uint64          `json:"chain_id"`
	Sequence  uint64          `json:"sequence"`
	OpHash    string          `json:"op_hash"`
	LogIndex  uint64          `json:"log_index"`
	Address   string          `json:"address"`
	EventName string          `json:"event_name"`
	Timestamp uint64          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
	Raw       *RawLogRef      `json:"raw,omitempty"`
}
