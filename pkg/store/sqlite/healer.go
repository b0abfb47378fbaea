package sqlite

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/pkg/store"
)

// HealFunc writes the parent rows a rejected child row depends on.
type HealFunc func(ctx context.Context, tx store.DBTX) error

// Healer retries a row once after synthesizing its missing foreign-key parents.
type Healer struct {
	writer store.Writer
	logger *zap.Logger

	healed   atomic.Int64
	unhealed atomic.Int64
}

// NewHealer wraps writer.
func NewHealer(writer store.Writer, logger *zap.Logger) *Healer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Healer{writer: writer, logger: logger}
}

// Write inserts row. On a foreign-key violation it calls heal and retries the
// insert exactly once. The retry's error, if any, is returned as is.
func (h *Healer) Write(ctx context.Context, tx store.DBTX, row store.Row, heal HealFunc) error {
	err := h.writer.Write(ctx, tx, row)
	if err == nil || !store.IsForeignKey(err) || heal == nil {
		return err
	}

	h.logger.Debug("foreign key missing, healing", zap.String("table", row.Table()))
	if healErr := heal(ctx, tx); healErr != nil {
		if !store.IsViolation(healErr) {
			return healErr
		}
		log := h.logger.Warn
		if store.IsUnique(healErr) {
			log = h.logger.Debug
		}
		log("parent row rejected while healing",
			zap.String("table", row.Table()),
			zap.Error(healErr),
		)
	}

	if err := h.writer.Write(ctx, tx, row); err != nil {
		h.unhealed.Add(1)
		return err
	}
	h.healed.Add(1)
	return nil
}

// Healed returns how many rows succeeded on retry.
func (h *Healer) Healed() int64 {
	return h.healed.Load()
}

// Unhealed returns how many rows still failed after the retry.
func (h *Healer) Unhealed() int64 {
	return h.unhealed.Load()
}
