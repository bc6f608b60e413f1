package model

// TokenMeta describes a pool token for display.
type TokenMeta struct {
	Address  string `json:"address" mapstructure:"address"`
	Decimals uint8  `json:"decimals" mapstructure:"decimals"`
	Symbol   string `json:"symbol" mapstructure:"symbol"`
}
