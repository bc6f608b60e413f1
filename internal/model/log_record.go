package model

// LogRecord is an ABI-encoded pool event as written to storage. Sequence is the
// index of the simulation operation that produced it.
type LogRecord struct {
	ChainID    uint64   `json:"chain_id"`
	Sequence   uint64   `json:"sequence"`
	OpHash     string   `json:"op_hash"`
	LogIndex   uint64   `json:"log_index"`
	Address    string   `json:"address"`
	Topics     []string `json:"topics"`
	Data       string   `json:"data"`
	Timestamp  uint64   `json:"timestamp"`
	IngestedAt string   `json:"ingested_at"`
}
