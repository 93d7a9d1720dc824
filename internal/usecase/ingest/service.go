// Package ingest is the dual-write coordinator: every write goes to the vector store and the
// text index concurrently, and a write accepted by only one of them is compensated.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/metrics"
)

// Store names used in logs, metrics and PartialWriteError.
const (
	StoreVector = "vector_store"
	StoreText   = "text_index"
)

// DefaultStoreTimeout bounds each store call.
const DefaultStoreTimeout = 5 * time.Second

// Service coordinates writes across both stores.
type Service struct {
	vec          VectorStore
	text         TextIndex
	embedder     domain.Embedder
	storeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a dual-write coordinator. embedder should be the document-side embedder.
func New(vec VectorStore, text TextIndex, embedder domain.Embedder, logger *zap.Logger) *Service {
	return &Service{
		vec:          vec,
		text:         text,
		embedder:     embedder,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// WithStoreTimeout overrides the per-call store deadline.
func (s *Service) WithStoreTimeout(d time.Duration) *Service {
	if d > 0 {
		s.storeTimeout = d
	}
	return s
}

// Ingest writes docs to both stores. Ids already present in a store are left untouched.
func (s *Service) Ingest(ctx context.Context, docs []document.Document) error {
	return s.write(ctx, "ingest", docs, document.WriteInsert)
}

// Upsert writes docs to both stores, replacing stored copies.
func (s *Service) Upsert(ctx context.Context, docs []document.Document) error {
	return s.write(ctx, "upsert", docs, document.WriteReplace)
}

func (s *Service) write(ctx context.Context, op string, docs []document.Document, mode document.WriteMode) error {
	if len(docs) == 0 {
		return nil
	}
	if err := checkUniqueIDs(docs); err != nil {
		return err
	}

	now := s.now().UTC()
	stamped := make([]document.Document, len(docs))
	contents := make([]string, len(docs))
	for i := range docs {
		stamped[i] = docs[i].Stamped(now)
		contents[i] = docs[i].Content()
	}
	ids := document.IDs(stamped)

	vectors, err := domain.EmbedMany(ctx, s.embedder, contents)
	if err != nil {
		metrics.DualWriteTotal.WithLabelValues(op, "failed").Inc()
		if !errors.Is(err, domain.ErrEmbeddingFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
		}
		return fmt.Errorf("%s: vectorize documents: %w", op, err)
	}

	opID := uuid.NewString()
	log := s.logger.With(zap.String("op", op), zap.String("op_id", opID), zap.Int("documents", len(docs)))

	var vecWritten, textWritten []string
	vecErr, textErr := s.fanOut(ctx,
		func(ctx context.Context) (err error) {
			vecWritten, err = s.vec.Upsert(ctx, stamped, vectors, mode)
			return err
		},
		func(ctx context.Context) (err error) {
			textWritten, err = s.text.Upsert(ctx, stamped, mode)
			return err
		},
	)

	switch {
	case vecErr == nil && textErr == nil:
		metrics.DualWriteTotal.WithLabelValues(op, "ok").Inc()
		log.Debug("Dual write completed", zap.String("mode", mode.String()))
		return nil

	case vecErr != nil && textErr != nil:
		metrics.DualWriteTotal.WithLabelValues(op, "failed").Inc()
		log.Error("Dual write failed on both stores",
			zap.NamedError("vector_error", vecErr),
			zap.NamedError("text_error", textErr),
		)
		return fmt.Errorf("%s: %w", op, errors.Join(vecErr, textErr))
	}

	metrics.DualWriteTotal.WithLabelValues(op, "partial").Inc()
	pw := &domain.PartialWriteError{IDs: ids}
	succeededDel, failedDel := s.text.Delete, s.vec.Delete
	written := textWritten
	if vecErr != nil {
		pw.Succeeded, pw.Failed, pw.Err = StoreText, StoreVector, vecErr
	} else {
		pw.Succeeded, pw.Failed, pw.Err = StoreVector, StoreText, textErr
		succeededDel, failedDel = s.vec.Delete, s.text.Delete
		written = vecWritten
	}

	// Insert mode rolls back only what the succeeded store wrote, so a skipped id keeps its
	// existing copies. Replace mode may have overwritten every id in the succeeded store while
	// the failed store still holds the old version, so every id goes.
	pw.Compensated = written
	if mode == document.WriteReplace {
		pw.Compensated = ids
	}
	var cleanupErr error
	pw.CompensationErr, cleanupErr = s.compensate(ctx, pw.Succeeded, succeededDel, pw.Failed, failedDel, pw.Compensated)

	fields := []zap.Field{
		zap.String("succeeded", pw.Succeeded),
		zap.String("failed", pw.Failed),
		zap.Strings("compensated_ids", pw.Compensated),
		zap.NamedError("write_error", pw.Err),
	}
	if cleanupErr != nil {
		fields = append(fields, zap.NamedError("cleanup_error", cleanupErr))
	}
	if pw.CompensationErr != nil {
		// The documents stay retrievable from the succeeded store until they are rewritten or deleted.
		log.Error("Partial write left uncompensated",
			append(fields, zap.NamedError("compensation_error", pw.CompensationErr))...)
	} else {
		log.Warn("Partial write compensated", fields...)
	}
	return pw
}

// compensate deletes ids from both stores after a partial write. The delete on the succeeded
// store decides the outcome; the delete on the failed store clears whatever that store kept and
// its error is only reported for logging. It runs detached from the caller's cancellation so
// that an aborted request still rolls back.
func (s *Service) compensate(
	ctx context.Context,
	succeeded string, succeededDel func(context.Context, []string) error,
	failed string, failedDel func(context.Context, []string) error,
	ids []string,
) (compErr, cleanupErr error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		if err := s.call(cctx, func(ctx context.Context) error { return succeededDel(ctx, ids) }); err != nil {
			metrics.CompensationsTotal.WithLabelValues(succeeded, "failed").Inc()
			compErr = fmt.Errorf("compensate %s: %w", succeeded, err)
			return nil
		}
		metrics.CompensationsTotal.WithLabelValues(succeeded, "ok").Inc()
		return nil
	})
	g.Go(func() error {
		if err := s.call(cctx, func(ctx context.Context) error { return failedDel(ctx, ids) }); err != nil {
			cleanupErr = fmt.Errorf("clean up %s: %w", failed, err)
		}
		return nil
	})
	_ = g.Wait()
	return compErr, cleanupErr
}

// Delete removes ids from both stores. It succeeds when at least one store confirmed.
func (s *Service) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	vecErr, textErr := s.fanOut(ctx,
		func(ctx context.Context) error { return s.vec.Delete(ctx, ids) },
		func(ctx context.Context) error { return s.text.Delete(ctx, ids) },
	)
	return s.settle("delete", vecErr, textErr, zap.Strings("ids", ids))
}

// ClearAll removes every document from both stores. It succeeds when at least one store
// cleared.
func (s *Service) ClearAll(ctx context.Context) error {
	vecErr, textErr := s.fanOut(ctx, s.vec.Clear, s.text.Clear)
	return s.settle("clear", vecErr, textErr)
}

func (s *Service) settle(op string, vecErr, textErr error, fields ...zap.Field) error {
	switch {
	case vecErr == nil && textErr == nil:
		metrics.DualWriteTotal.WithLabelValues(op, "ok").Inc()
		return nil
	case vecErr != nil && textErr != nil:
		metrics.DualWriteTotal.WithLabelValues(op, "failed").Inc()
		return fmt.Errorf("%s: %w", op, errors.Join(vecErr, textErr))
	}

	metrics.DualWriteTotal.WithLabelValues(op, "partial").Inc()
	failed, err := StoreVector, vecErr
	if textErr != nil {
		failed, err = StoreText, textErr
	}
	s.logger.Warn("Operation applied to one store only",
		append(fields, zap.String("op", op), zap.String("failed", failed), zap.Error(err))...)
	return nil
}

// fanOut runs both branches concurrently, each under its own store deadline.
// A failing branch never cancels its sibling.
func (s *Service) fanOut(ctx context.Context, vec, text func(context.Context) error) (vecErr, textErr error) {
	var g errgroup.Group
	g.Go(func() error {
		vecErr = s.call(ctx, vec)
		return nil
	})
	g.Go(func() error {
		textErr = s.call(ctx, text)
		return nil
	})
	_ = g.Wait()
	return vecErr, textErr
}

func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(cctx)
}

func checkUniqueIDs(docs []document.Document) error {
	seen := make(map[string]struct{}, len(docs))
	for i := range docs {
		id := docs[i].ID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate document id %q in batch", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
