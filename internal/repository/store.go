package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// ResultStore holds a single current outcome.
//
// Write replaces the stored outcome atomically; readers see either the previous
// or the new document, never a mix. Writes are serialized, and the last write
// wins regardless of when its run started. ReadCurrent returns
// common.ErrNotAvailable when nothing has been written yet.
type ResultStore interface {
	Write(ctx context.Context, o entity.Outcome) error
	ReadCurrent(ctx context.Context) (entity.Outcome, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (ResultStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("store.open", "store", cfg)
	switch cfg.Backend {
	case constants.StoreFile, "":
		return NewFileStore(cfg.Path, logger)
	case constants.StoreSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	case constants.StorePostgres:
		return OpenPostgres(ctx, PoolConfig{DSN: cfg.DSN}.withDefaults(), logger)
	case constants.StoreRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisKey, logger)
	default:
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("unknown store backend %q", cfg.Backend))
	}
}

// encode validates the outcome and returns its persisted document.
func encode(o entity.Outcome) ([]byte, error) {
	doc, err := o.Document()
	if err != nil {
		return nil, common.WrapError(common.ErrInvalidInput, err.Error())
	}
	return doc, nil
}

func storageErr(op string, err error) error {
	return common.NewAppError("STORAGE_ERROR", op, fmt.Errorf("%w: %v", common.ErrStorage, err))
}
