// Package service implements the visitor registry: a one-time initialization
// that fixes the fee, paid registrations that reward the visitor with the fee
// while the contract balance allows it, and read access to the ordered list
// of visitors.
//
// The registry never reaches for ambient state. Caller identity and attached
// value arrive in a models.CallContext, state lives behind Store, and balance,
// transfers and event emission are provided by Host. Serializing calls is the
// caller's job (see the runtime package).
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"visitorbook/internal/visitorbook/metrics"
	"visitorbook/internal/visitorbook/models"
	"visitorbook/pkg/domain"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/platform/sentinel"
)

// Store persists the registry state.
//
// Error contract:
//   - InitFee returns sentinel.ErrAlreadyUsed when a fee is already set.
//   - Fee returns sentinel.ErrNotFound before initialization.
//   - AppendVisitor returns sentinel.ErrConflict when the address is present.
//   - VisitorAt returns sentinel.ErrNotFound when index >= count.
type Store interface {
	InitFee(ctx context.Context, fee *uint256.Int) error
	Fee(ctx context.Context) (*uint256.Int, error)
	AppendVisitor(ctx context.Context, addr common.Address) error
	CountVisitors(ctx context.Context) (uint64, error)
	VisitorAt(ctx context.Context, index uint64) (common.Address, error)
	HasVisited(ctx context.Context, addr common.Address) (bool, error)
	ListVisitors(ctx context.Context) ([]common.Address, error)
}

// Host provides the capabilities of the execution environment: the balance
// held by the registry, outgoing transfers from that balance, and event
// emission.
type Host interface {
	Balance(ctx context.Context) (*uint256.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
	Emit(ctx context.Context, event models.VisitEvent) error
}

// Service is the visitor registry.
type Service struct {
	store   Store
	host    Host
	owner   *common.Address
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOwner restricts Initialize to a single caller.
func WithOwner(owner common.Address) Option {
	return func(s *Service) {
		s.owner = &owner
	}
}

func New(store Store, host Host, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if host == nil {
		return nil, errors.New("host is required")
	}
	s := &Service{
		store:  store,
		host:   host,
		logger: slog.Default(),
		tracer: otel.Tracer("visitorbook/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize sets the registration fee. It succeeds once.
func (s *Service) Initialize(ctx context.Context, caller common.Address) (err error) {
	ctx, span := s.tracer.Start(ctx, "visitorbook.Initialize",
		trace.WithAttributes(attribute.String("caller", caller.Hex())))
	defer endSpan(span, &err)

	if s.owner != nil && caller != *s.owner {
		return dErrors.New(dErrors.CodeForbidden, "only the owner may initialize the registry")
	}
	fee := models.NewDefaultFee()
	if err := s.store.InitFee(ctx, fee); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeAlreadyInitialized, "registry already initialized")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialize registry")
	}
	s.logger.InfoContext(ctx, "registry_initialized",
		"caller", caller.Hex(),
		"fee", domain.FormatAmount(fee),
	)
	return nil
}

// Sign registers the caller. Checks run in a fixed order: payment, then prior
// registration. A registration is followed by a Visit event and, when the
// balance covers it, a reward of one fee back to the caller.
//
// A failed reward transfer returns *models.TransferFailedError while the
// registration and event stand.
func (s *Service) Sign(ctx context.Context, call models.CallContext, message string) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "visitorbook.Sign",
		trace.WithAttributes(attribute.String("caller", call.Caller.Hex())))
	defer func() {
		s.metrics.ObserveSignLatency(time.Since(start))
		endSpan(span, &err)
	}()

	fee, err := s.fee(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotInitialized) {
			s.metrics.IncSignRejection("not_initialized")
		}
		return err
	}

	value := call.Value
	if value == nil {
		value = new(uint256.Int)
	}
	if value.Lt(fee) {
		s.metrics.IncSignRejection("insufficient_payment")
		return &models.InsufficientPaymentError{Visitor: call.Caller, Payment: value.Clone()}
	}

	visited, err := s.store.HasVisited(ctx, call.Caller)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check visitor")
	}
	if visited {
		s.metrics.IncSignRejection("already_visited")
		return &models.AlreadyVisitedError{}
	}

	if err := s.store.AppendVisitor(ctx, call.Caller); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncSignRejection("already_visited")
			return &models.AlreadyVisitedError{}
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record visitor")
	}
	if err := s.host.Emit(ctx, models.VisitEvent{Sender: call.Caller, Message: message}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit visit event")
	}
	s.metrics.IncVisits()
	s.logger.InfoContext(ctx, "visit_signed",
		"visitor", call.Caller.Hex(),
		"payment", domain.FormatAmount(value),
	)

	return s.reward(ctx, call.Caller, fee)
}

func (s *Service) reward(ctx context.Context, visitor common.Address, fee *uint256.Int) error {
	balance, err := s.host.Balance(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	if balance.Lt(fee) {
		s.metrics.IncRewardsSkipped()
		s.logger.InfoContext(ctx, "reward_skipped",
			"visitor", visitor.Hex(),
			"balance", domain.FormatAmount(balance),
		)
		return nil
	}
	if err := s.host.Transfer(ctx, visitor, fee.Clone()); err != nil {
		s.metrics.IncRewardTransferFailures()
		s.logger.WarnContext(ctx, "reward_transfer_failed",
			"visitor", visitor.Hex(),
			"amount", domain.FormatAmount(fee),
			"error", err,
		)
		return &models.TransferFailedError{Recipient: visitor, Amount: fee.Clone(), Err: err}
	}
	s.metrics.IncRewardsPaid()
	s.logger.InfoContext(ctx, "reward_paid",
		"visitor", visitor.Hex(),
		"amount", domain.FormatAmount(fee),
	)
	return nil
}

// TotalVisitors returns the number of registered visitors.
func (s *Service) TotalVisitors(ctx context.Context) (uint64, error) {
	n, err := s.store.CountVisitors(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count visitors")
	}
	return n, nil
}

// VisitorAt returns the visitor registered at position index (zero-based).
func (s *Service) VisitorAt(ctx context.Context, index *uint256.Int) (common.Address, error) {
	total, err := s.store.CountVisitors(ctx)
	if err != nil {
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count visitors")
	}
	if index == nil || !index.IsUint64() || index.Uint64() >= total {
		idx := new(uint256.Int)
		if index != nil {
			idx.Set(index)
		}
		return common.Address{}, &models.IndexOutOfBoundsError{Index: idx, Total: total}
	}
	addr, err := s.store.VisitorAt(ctx, index.Uint64())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return common.Address{}, &models.IndexOutOfBoundsError{Index: index.Clone(), Total: total}
		}
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load visitor")
	}
	return addr, nil
}

// HasVisited reports whether addr has registered.
func (s *Service) HasVisited(ctx context.Context, addr common.Address) (bool, error) {
	visited, err := s.store.HasVisited(ctx, addr)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check visitor")
	}
	return visited, nil
}

// Fee returns the registration fee, or CodeNotInitialized.
func (s *Service) Fee(ctx context.Context) (*uint256.Int, error) {
	return s.fee(ctx)
}

// Visitors returns every registered visitor in registration order.
func (s *Service) Visitors(ctx context.Context) ([]common.Address, error) {
	visitors, err := s.store.ListVisitors(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list visitors")
	}
	return visitors, nil
}

func (s *Service) fee(ctx context.Context) (*uint256.Int, error) {
	fee, err := s.store.Fee(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotInitialized, "registry not initialized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fee")
	}
	return fee, nil
}

func endSpan(span trace.Span, errp *error) {
	if err := *errp; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
