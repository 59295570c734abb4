// Package consumer reads rebuild requests from Kafka and refits the serving
// index. Requests issued before the start of the last successful rebuild are
// already covered by it and are skipped.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexical-ranker/pkg/kafka"
)

// Rebuilder refits the index from the record store.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*executor.RebuildResult, error)
}

// RebuildConsumer wraps a Kafka consumer to drive index rebuilds.
type RebuildConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a RebuildConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *RebuildConsumer {
	return &RebuildConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "rebuild-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (rc *RebuildConsumer) Start(ctx context.Context) error {
	rc.logger.Info("rebuild consumer starting")
	return rc.consumer.Start(ctx)
}

// Handler turns rebuild requests into Rebuild calls.
type Handler struct {
	rebuilder Rebuilder
	now       func() time.Time
	mu        sync.Mutex
	// lastStart is when the last successful rebuild began listing records.
	lastStart time.Time
	logger    *slog.Logger
}

func NewHandler(rebuilder Rebuilder) *Handler {
	return &Handler{
		rebuilder: rebuilder,
		now:       time.Now,
		logger:    slog.Default().With("component", "rebuild-consumer"),
	}
}

// HandleMessage returns the kafka.MessageHandler for the rebuild topic.
// Malformed messages and rebuilds that fail on the data itself are logged
// and committed; other failures are returned so the message is redelivered.
func (h *Handler) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[indexer.RebuildRequest](value)
		if err != nil {
			h.logger.Error("failed to decode rebuild request",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		return h.handle(ctx, req)
	}
}

func (h *Handler) handle(ctx context.Context, req indexer.RebuildRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !req.RequestedAt.IsZero() && !h.lastStart.IsZero() && req.RequestedAt.Before(h.lastStart) {
		h.logger.Debug("rebuild request already covered",
			"request_id", req.RequestID,
			"requested_at", req.RequestedAt,
			"last_rebuild", h.lastStart,
		)
		return nil
	}

	start := h.now()
	res, err := h.rebuilder.Rebuild(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyCorpus) || errors.Is(err, apperrors.ErrInvalidInput) {
			h.logger.Error("rebuild request rejected",
				"request_id", req.RequestID,
				"error", err,
			)
			return nil
		}
		return fmt.Errorf("rebuilding for request %s: %w", req.RequestID, err)
	}
	h.lastStart = start
	h.logger.Info("index rebuilt from request",
		"request_id", req.RequestID,
		"reason", req.Reason,
		"generation", res.Generation,
		"documents", res.Documents,
	)
	return nil
}
