// Package storage holds sinks for encoded pool events.
package storage

import "poolcore/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}
