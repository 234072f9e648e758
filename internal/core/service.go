package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/portal/internal/logging"
	"github.com/google/uuid"
)

// Defaults applied by NewService when a ServiceConfig field is zero.
const (
	DefaultMaxFileSize   = 10 << 20 // 10MB
	DefaultImportTimeout = 5 * time.Minute
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	MaxFileSize   int64
	ImportTimeout time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
	Credentials   CredentialPolicy
}

// ImportOptions modifies a single ImportBatch call.
type ImportOptions struct {
	// DryRun reconciles the batch and rolls it back.
	DryRun bool
}

// Observer receives the outcome of every batch attempt.
type Observer interface {
	ObserveBatch(summary *Summary, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveBatch(*Summary, error) {}

// Service provides the portal's business operations over a Store.
type Service struct {
	store      Store
	hasher     PasswordHasher
	reconciler *Reconciler
	limiter    *UploadLimiter
	observer   Observer
	cfg        ServiceConfig
}

// NewService creates a Service. observer may be nil.
func NewService(store Store, hasher PasswordHasher, cfg ServiceConfig, observer Observer) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &Service{
		store:      store,
		hasher:     hasher,
		reconciler: NewReconciler(hasher, cfg.Credentials),
		limiter:    NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		observer:   observer,
		cfg:        cfg,
	}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Limiter returns the upload gate shared by every import.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// ImportBatch reads a CSV batch from r and reconciles it in one transaction.
// size is the declared upload size, or -1 when unknown.
//
// A returned error means nothing was written: structural problems
// (ErrMalformedBatch, ErrEmptyFile, ErrFileTooLarge), a busy gate
// (ErrTooManyUploads), or a storage failure. Row problems are reported in
// the Summary instead.
func (s *Service) ImportBatch(ctx context.Context, fileName string, r io.Reader, size int64, opts ImportOptions) (*Summary, error) {
	summary, err := s.importBatch(ctx, fileName, r, size, opts)
	s.observer.ObserveBatch(summary, err)
	return summary, err
}

func (s *Service) importBatch(ctx context.Context, fileName string, r io.Reader, size int64, opts ImportOptions) (*Summary, error) {
	start := time.Now()
	batchID := uuid.NewString()
	logger := logging.WithFields(ctx,
		"batch_id", batchID,
		"file", fileName,
		"dry_run", opts.DryRun,
	)

	if size > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d byte limit", ErrFileTooLarge, size, s.cfg.MaxFileSize)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("batch rejected", "error", err)
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
	defer cancel()

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: exceeds %d byte limit", ErrFileTooLarge, s.cfg.MaxFileSize)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	batch, err := ReadBatch(bytes.NewReader(data))
	if err != nil {
		logger.Warn("batch rejected", "error", err)
		return nil, err
	}

	logger.Info("batch started", "rows", batch.Len())

	var summary *Summary
	err = s.store.WithTx(ctx, func(q Queries) error {
		var err error
		summary, err = s.reconciler.Reconcile(ctx, q, batch, logger)
		if err != nil {
			return err
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		logger.Error("batch rolled back", "error", err)
		return nil, fmt.Errorf("reconcile batch: %w", err)
	}

	summary.BatchID = batchID
	summary.FileName = fileName
	summary.DryRun = opts.DryRun
	summary.Duration = time.Since(start)

	logger.Info("batch completed",
		"processed", summary.Processed,
		"errors", summary.Errors,
		"created_students", len(summary.CreatedStudents),
		"created_scores", len(summary.CreatedScores),
		"updated_scores", summary.UpdatedScores,
		"remaps", len(summary.Remaps),
		"duration", summary.Duration,
	)

	return summary, nil
}
