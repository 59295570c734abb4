package indexer

import "time"

// RebuildRequest is the Kafka message asking the service to refit its index
// from the record store.
type RebuildRequest struct {
	RequestID   string    `json:"request_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// FittedEvent is published after a new index starts serving.
type FittedEvent struct {
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	Vocabulary int       `json:"vocabulary"`
	AvgDocLen  float64   `json:"avg_doc_len"`
	K1         float64   `json:"k1"`
	B          float64   `json:"b"`
	DurationMs int64     `json:"duration_ms"`
	Source     string    `json:"source"`
	FittedAt   time.Time `json:"fitted_at"`
}
