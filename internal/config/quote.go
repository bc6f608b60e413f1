package config

import "github.com/spf13/pflag"

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	PoolFile           string
	Script             string
	Side               string
	Amount             string
	Trader             string
	Referral           string
	At                 uint64
	StartPoint         uint64
	MaxVestingDuration uint64
	LogLevel           string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"side":                 "a",
		"trader":               "0x000000000000000000000000000000000000dEaD",
		"max-vesting-duration": uint64(365 * 24 * 3600),
		"log-level":            "warn",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		PoolFile:           v.GetString("pool"),
		Script:             v.GetString("script"),
		Side:               v.GetString("side"),
		Amount:             v.GetString("amount"),
		Trader:             v.GetString("trader"),
		Referral:           v.GetString("referral"),
		At:                 v.GetUint64("at"),
		StartPoint:         v.GetUint64("start-point"),
		MaxVestingDuration: v.GetUint64("max-vesting-duration"),
		LogLevel:           v.GetString("log-level"),
	}, nil
}
