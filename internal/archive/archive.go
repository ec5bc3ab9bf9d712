// Package archive exports JSON snapshots of the registry to object storage.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"visitorbook/internal/visitorbook/models"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/requestcontext"
)

// Source produces a consistent view of the registry.
type Source interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// BlobStore writes objects.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Result describes one written snapshot.
type Result struct {
	Key           string
	TotalVisitors uint64
}

// Exporter writes snapshots under snapshots/<contract>/<timestamp>.json.
type Exporter struct {
	source Source
	blobs  BlobStore
	logger *slog.Logger
}

func NewExporter(source Source, blobs BlobStore, logger *slog.Logger) (*Exporter, error) {
	if source == nil {
		return nil, errors.New("snapshot source is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{source: source, blobs: blobs, logger: logger}, nil
}

func (e *Exporter) Export(ctx context.Context) (Result, error) {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	snap.TakenAt = requestcontext.Now(ctx).UTC()

	body, err := json.Marshal(snap)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode snapshot")
	}
	key := fmt.Sprintf("snapshots/%s/%s.json", snap.Contract.Hex(), snap.TakenAt.Format("20060102T150405.000000000Z"))
	if err := e.blobs.Put(ctx, key, body, "application/json"); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store snapshot")
	}
	e.logger.InfoContext(ctx, "snapshot_exported",
		"key", key,
		"total_visitors", snap.TotalVisitors,
	)
	return Result{Key: key, TotalVisitors: snap.TotalVisitors}, nil
}

// Run exports every interval until ctx is cancelled. Failures are logged and
// retried on the next tick.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Export(ctx); err != nil && ctx.Err() == nil {
				e.logger.WarnContext(ctx, "scheduled snapshot failed", "error", err)
			}
		}
	}
}
