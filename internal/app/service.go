// Package service is the contract entry surface. Each public operation runs
// as one store transaction: the initialization gate, the caller check and
// the ledger change commit together or not at all.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/scorenft/internal/adapters/auth"
	eventqueue "github.com/okian/scorenft/internal/adapters/mq/queue"
	workerpool "github.com/okian/scorenft/internal/adapters/mq/worker"
	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/domain/authz"
	"github.com/okian/scorenft/internal/domain/dedupe"
	"github.com/okian/scorenft/internal/domain/ledger"
	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/internal/domain/scoring"
	"github.com/okian/scorenft/internal/domain/types"
	"github.com/okian/scorenft/pkg/logger"
	"github.com/okian/scorenft/pkg/metrics"
)

const tracerName = "github.com/okian/scorenft/internal/app"

// Operation names used in logs, metrics and spans.
const (
	OpInitialize         = "initialize"
	OpMint               = "mint"
	OpUpdateScore        = "update_score"
	OpUpdateHistoryHash  = "update_history_hash"
	OpAuthorizeMinter    = "authorize_minter"
	OpRevokeMinter       = "revoke_minter"
	OpGetScore           = "get_score"
	OpGetMetadata        = "get_metadata"
	OpIsAuthorizedMinter = "is_authorized_minter"
	OpContract           = "contract"
)

// Service implements the API dependencies for the score ledger.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	scorer     scoring.Scorer
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool
	sinks      []workerpool.Sink
	tracer     trace.Tracer
	now        func() time.Time

	workerCount int
	queueSize   int

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the contract store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithScorer overrides the repayment scoring policy.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithSinks sets where committed events are delivered.
func WithSinks(sinks ...workerpool.Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithWorkerCount sets the number of event delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Without WithStore it keeps state in memory.
func New(opts ...Option) *Service {
	s := &Service{
		scorer:      scoring.NewRepaymentScorer(),
		workerCount: 2,
		queueSize:   10000,
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	return s
}

// Start launches event delivery.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.eventQueue.IsClosed() {
		return fmt.Errorf("service cannot be restarted after stop")
	}
	sinks := s.sinks
	if len(sinks) == 0 {
		sinks = []workerpool.Sink{workerpool.NewLogSink(s.logger.Named("events"))}
	}
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, sinks)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "score ledger service started",
		logger.String("store", s.store.Driver()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains pending events and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping score ledger service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "event delivery did not drain", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "score ledger service stopped")
}

// Initialize installs admin. Any caller may bootstrap the contract once;
// the caller is recorded on the event only.
func (s *Service) Initialize(ctx context.Context, admin model.Identity) (err error) {
	ctx, done := s.begin(ctx, OpInitialize, admin)
	defer func() { done(err) }()

	caller, _ := auth.CallerFrom(ctx)
	err = s.store.Update(ctx, func(tx repository.Txn) error {
		if _, ok, err := authz.Admin(tx); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInitialized
		}
		var err error
		if admin, err = canonical(admin); err != nil {
			return err
		}
		return authz.Initialize(tx, admin)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", OpInitialize, err)
	}
	s.publish(ctx, model.Event{Kind: model.EventInitialized, Identity: admin, Caller: caller})
	return nil
}

// Mint creates the record of id.
func (s *Service) Mint(ctx context.Context, id model.Identity, score uint64, hash model.HistoryHash) (meta types.Metadata, err error) {
	ctx, done := s.begin(ctx, OpMint, id)
	defer func() { done(err) }()

	caller, _ := auth.CallerFrom(ctx)
	var rec model.ScoreRecord
	err = s.store.Update(ctx, func(tx repository.Txn) error {
		if err := authz.RequireMinter(tx, caller); err != nil {
			return err
		}
		var err error
		if id, err = canonical(id); err != nil {
			return err
		}
		rec, err = ledger.Mint(tx, id, score, hash)
		return err
	})
	if err != nil {
		return types.Metadata{}, fmt.Errorf("%s: %w", OpMint, err)
	}
	metrics.RecordRecordMinted()
	s.publish(ctx, model.Event{Kind: model.EventMinted, Identity: id, Caller: caller, Score: rec.Score, HistoryHash: rec.HistoryHash})
	return types.Metadata{Identity: id, Score: rec.Score, HistoryHash: rec.HistoryHash}, nil
}

// UpdateScore applies a repayment to id's record. A non-empty repaymentID
// makes the call idempotent: its receipt commits with the score change, and
// a replay reports the current score instead of adding the delta again.
func (s *Service) UpdateScore(ctx context.Context, id model.Identity, amount uint64, repaymentID string) (res types.RepaymentResult, err error) {
	ctx, done := s.begin(ctx, OpUpdateScore, id)
	defer func() { done(err) }()

	caller, _ := auth.CallerFrom(ctx)
	err = s.store.Update(ctx, func(tx repository.Txn) error {
		if err := authz.RequireMinter(tx, caller); err != nil {
			return err
		}
		var err error
		if id, err = canonical(id); err != nil {
			return err
		}
		if repaymentID == "" {
			result, err := ledger.UpdateScore(ctx, tx, s.scorer, id, amount)
			res = types.RepaymentResult{Identity: id, Score: result.Score, Delta: result.Delta}
			return err
		}
		res, err = applyRepaymentOnce(ctx, tx, s.scorer, id, amount, repaymentID)
		return err
	})
	if err != nil {
		return types.RepaymentResult{}, fmt.Errorf("%s: %w", OpUpdateScore, err)
	}
	if res.Duplicate {
		metrics.RecordDuplicateRepayment()
		s.logger.Debug(ctx, "duplicate repayment ignored",
			logger.String("identity", id.String()),
			logger.String("repayment_id", repaymentID),
		)
		return res, nil
	}
	metrics.RecordScoreDelta(res.Delta)
	s.publish(ctx, model.Event{Kind: model.EventScoreUpdated, Identity: id, Caller: caller, Score: res.Score, Delta: res.Delta})
	return res, nil
}

// applyRepaymentOnce applies the repayment unless its receipt already exists.
func applyRepaymentOnce(ctx context.Context, tx repository.Txn, scorer scoring.Scorer, id model.Identity, amount uint64, repaymentID string) (types.RepaymentResult, error) {
	if err := dedupe.Validate(repaymentID); err != nil {
		return types.RepaymentResult{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if _, seen, err := dedupe.Lookup(tx, id, repaymentID); err != nil {
		return types.RepaymentResult{}, err
	} else if seen {
		rec, ok, err := ledger.Get(tx, id)
		if err != nil {
			return types.RepaymentResult{}, err
		}
		if !ok {
			return types.RepaymentResult{}, fmt.Errorf("%w: %s", ErrNoRecord, id)
		}
		return types.RepaymentResult{Identity: id, Score: rec.Score, Duplicate: true}, nil
	}
	result, err := ledger.UpdateScore(ctx, tx, scorer, id, amount)
	if err != nil {
		return types.RepaymentResult{}, err
	}
	rc := dedupe.Receipt{Amount: amount, Delta: result.Delta, Score: result.Score}
	if err := dedupe.Record(tx, id, repaymentID, rc); err != nil {
		return types.RepaymentResult{}, err
	}
	return types.RepaymentResult{Identity: id, Score: result.Score, Delta: result.Delta}, nil
}

// UpdateHistoryHash replaces the history hash of id's record.
func (s *Service) UpdateHistoryHash(ctx context.Context, id model.Identity, hash model.HistoryHash) (meta types.Metadata, err error) {
	ctx, done := s.begin(ctx, OpUpdateHistoryHash, id)
	defer func() { done(err) }()

	caller, _ := auth.CallerFrom(ctx)
	var rec model.ScoreRecord
	err = s.store.Update(ctx, func(tx repository.Txn) error {
		if err := authz.RequireMinter(tx, caller); err != nil {
			return err
		}
		var err error
		if id, err = canonical(id); err != nil {
			return err
		}
		rec, err = ledger.UpdateHistoryHash(tx, id, hash)
		return err
	})
	if err != nil {
		return types.Metadata{}, fmt.Errorf("%s: %w", OpUpdateHistoryHash, err)
	}
	s.publish(ctx, model.Event{Kind: model.EventHistoryHashUpdate, Identity: id, Caller: caller, Score: rec.Score, HistoryHash: rec.HistoryHash})
	return types.Metadata{Identity: id, Score: rec.Score, HistoryHash: rec.HistoryHash}, nil
}

// AuthorizeMinter grants id the right to mint and update records.
func (s *Service) AuthorizeMinter(ctx context.Context, id model.Identity) (err error) {
	ctx, done := s.begin(ctx, OpAuthorizeMinter, id)
	defer func() { done(err) }()

	caller, _ := auth.CallerFrom(ctx)
	var changed bool
	err = s.store.Update(ctx, func(tx repository.Txn) error {
		if err := authz.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var err error
		if id, err = canonical(id); err != nil {
			return err
		}
		changed, err = authz.Authorize(tx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", OpAuthorizeMinter, err)
	}
	if changed {
		s.publish(ctx, model.Event{Kind: model.EventMinterAuthorized, Identity: id, Caller: caller})
	}
	return nil
}

// RevokeMinter withdraws id's minter right. The admin is unaffected.
func (s *Service) RevokeMinter(ctx context.Context, id model.Identity) (err error) {
	ctx, done := s.begin(ctx, OpRevokeMinter, id)
	defer func() { done(err) }()

	caller, _ := auth.CallerFrom(ctx)
	var changed bool
	err = s.store.Update(ctx, func(tx repository.Txn) error {
		if err := authz.RequireAdmin(tx, caller); err != nil {
			return err
		}
		var err error
		if id, err = canonical(id); err != nil {
			return err
		}
		changed, err = authz.Revoke(tx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", OpRevokeMinter, err)
	}
	if changed {
		s.publish(ctx, model.Event{Kind: model.EventMinterRevoked, Identity: id, Caller: caller})
	}
	return nil
}

// GetScore returns id's score, 0 when it has no record.
func (s *Service) GetScore(ctx context.Context, id model.Identity) (view types.ScoreView, err error) {
	ctx, done := s.begin(ctx, OpGetScore, id)
	defer func() { done(err) }()

	if id, err = canonical(id); err != nil {
		return types.ScoreView{}, err
	}
	var score uint64
	err = s.store.View(ctx, func(r repository.Reader) error {
		var err error
		score, err = ledger.Score(r, id)
		return err
	})
	if err != nil {
		return types.ScoreView{}, fmt.Errorf("%s: %w", OpGetScore, err)
	}
	return types.ScoreView{Identity: id, Score: score}, nil
}

// GetMetadata returns id's record. It reports false when none exists.
func (s *Service) GetMetadata(ctx context.Context, id model.Identity) (meta types.Metadata, found bool, err error) {
	ctx, done := s.begin(ctx, OpGetMetadata, id)
	defer func() { done(err) }()

	if id, err = canonical(id); err != nil {
		return types.Metadata{}, false, err
	}
	var rec model.ScoreRecord
	err = s.store.View(ctx, func(r repository.Reader) error {
		var err error
		rec, found, err = ledger.Get(r, id)
		return err
	})
	if err != nil {
		return types.Metadata{}, false, fmt.Errorf("%s: %w", OpGetMetadata, err)
	}
	if !found {
		return types.Metadata{}, false, nil
	}
	return types.Metadata{Identity: id, Score: rec.Score, HistoryHash: rec.HistoryHash}, true, nil
}

// IsAuthorizedMinter reports whether id is the admin or an explicit minter.
func (s *Service) IsAuthorizedMinter(ctx context.Context, id model.Identity) (view types.MinterView, err error) {
	ctx, done := s.begin(ctx, OpIsAuthorizedMinter, id)
	defer func() { done(err) }()

	if id, err = canonical(id); err != nil {
		return types.MinterView{}, err
	}
	var ok bool
	err = s.store.View(ctx, func(r repository.Reader) error {
		var err error
		ok, err = authz.IsAuthorized(r, id)
		return err
	})
	if err != nil {
		return types.MinterView{}, fmt.Errorf("%s: %w", OpIsAuthorizedMinter, err)
	}
	return types.MinterView{Identity: id, Authorized: ok}, nil
}

// Contract summarizes the authorization registry.
func (s *Service) Contract(ctx context.Context) (info types.ContractInfo, err error) {
	ctx, done := s.begin(ctx, OpContract, "")
	defer func() { done(err) }()

	err = s.store.View(ctx, func(r repository.Reader) error {
		admin, ok, err := authz.Admin(r)
		if err != nil {
			return err
		}
		minters, err := authz.Minters(r)
		if err != nil {
			return err
		}
		info = types.ContractInfo{Initialized: ok, Admin: admin, Minters: minters}
		return nil
	})
	if err != nil {
		return types.ContractInfo{}, fmt.Errorf("%s: %w", OpContract, err)
	}
	return info, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"store":       s.store.Driver(),
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		stats["queueLength"] = s.eventQueue.Len(context.Background())
	}
	return stats
}

// begin opens the span for op and returns a completion func that records
// the outcome in the span, metrics and logs.
func (s *Service) begin(ctx context.Context, op string, id model.Identity) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "scorenft."+op, trace.WithAttributes(
		attribute.String("scorenft.identity", id.String()),
	))
	return ctx, func(err error) {
		result := resultOf(err)
		metrics.RecordOperation(op, result, float64(time.Since(start).Milliseconds()))
		span.SetAttributes(attribute.String("scorenft.result", result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
			if result == "error" {
				s.logger.Error(ctx, "operation failed",
					logger.String("op", op),
					logger.String("identity", id.String()),
					logger.Error(err),
				)
			}
		}
		span.End()
	}
}

// publish hands a committed event to the delivery queue. A full queue drops
// the event; the mutation it describes is already durable.
func (s *Service) publish(ctx context.Context, e model.Event) { //nolint:gocritic // hugeParam: events travel by value
	e.EventID = uuid.NewString()
	e.At = s.now().UTC()
	if !s.eventQueue.Enqueue(context.WithoutCancel(ctx), e) {
		s.logger.Warn(ctx, "ledger event dropped",
			logger.String("event_id", e.EventID),
			logger.String("kind", string(e.Kind)),
			logger.String("identity", e.Identity.String()),
		)
	}
}

func canonical(id model.Identity) (model.Identity, error) {
	parsed, err := model.ParseIdentity(id.String())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return parsed, nil
}
