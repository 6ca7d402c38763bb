package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vouchsafe/internal/assets"
	custodymetrics "vouchsafe/internal/custody/metrics"
	"vouchsafe/internal/custody/models"
	"vouchsafe/internal/events"
	"vouchsafe/pkg/domain"
	dErrors "vouchsafe/pkg/domain-errors"
	"vouchsafe/pkg/platform/sentinel"
	"vouchsafe/pkg/requestcontext"
)

// ManagerStore is the persistence contract for manager aggregates. Execute
// must hold exclusive access to the instance across both callbacks: a failed
// check aborts with nothing persisted.
type ManagerStore interface {
	Create(ctx context.Context, m *models.Manager) error
	FindByID(ctx context.Context, id domain.ManagerID) (*models.Manager, error)
	Execute(ctx context.Context, id domain.ManagerID, check func(*models.Manager) error, mutate func(*models.Manager)) (*models.Manager, error)
	Count(ctx context.Context) (int, error)
}

// Service orchestrates the custodial ledger: registration, issuance,
// funding, redemption, and staking against manager aggregates.
type Service struct {
	managers         ManagerStore
	logger           *slog.Logger
	events           events.Emitter
	metrics          *custodymetrics.Metrics
	assets           assets.Store
	openRegistration bool
	tracer           trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEventEmitter(emitter events.Emitter) Option {
	return func(s *Service) {
		s.events = emitter
	}
}

func WithMetrics(m *custodymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAssetStore wires the host's fungible-value primitive so committed
// ledger mutations settle against real asset accounts.
func WithAssetStore(store assets.Store) Option {
	return func(s *Service) {
		s.assets = store
	}
}

// WithOpenRegistration relaxes the owner-only gate on RegisterUser. The
// strict gate is the default; this flag exists because an earlier revision
// of the design allowed any caller to register users.
func WithOpenRegistration(open bool) Option {
	return func(s *Service) {
		s.openRegistration = open
	}
}

// New constructs a Service.
func New(managers ManagerStore, opts ...Option) *Service {
	s := &Service{
		managers: managers,
		tracer:   otel.Tracer("vouchsafe/custody"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wrapErr translates domain and store errors into coded errors while keeping
// the original kind matchable through the chain.
func wrapErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrUnauthorized):
		return dErrors.Wrap(err, dErrors.CodeForbidden, op)
	case errors.Is(err, models.ErrInvalidUserID), errors.Is(err, models.ErrInvalidVoucherID):
		return dErrors.Wrap(err, dErrors.CodeNotFound, op)
	case errors.Is(err, models.ErrVoucherAlreadyRedeemed):
		return dErrors.Wrap(err, dErrors.CodeConflict, op)
	case errors.Is(err, models.ErrInsufficientFunds):
		return dErrors.Wrap(err, dErrors.CodePreconditionFailed, op)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "manager not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, op)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// emit publishes an event after a committed mutation. Emission failures do
// not undo the mutation; they are surfaced in the log.
func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.events.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "event emission failed",
			"kind", string(event.Kind),
			"manager_id", event.ManagerID.String(),
			"error", err,
		)
	}
}

func (s *Service) countUnauthorized(err error) {
	if s.metrics != nil && errors.Is(err, models.ErrUnauthorized) {
		s.metrics.UnauthorizedAttempts.Inc()
	}
}

// settle mirrors a committed mutation into the asset store. The primitive is
// assumed atomic; a failure here means the mirror has diverged and is logged
// for reconciliation rather than failing the committed operation.
func (s *Service) settle(ctx context.Context, op func(assets.Store) error) {
	if s.assets == nil {
		return
	}
	if err := op(s.assets); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "asset settlement diverged", "error", err)
	}
}

func poolAccount(id domain.ManagerID) string {
	return "manager:" + id.String()
}

func userAccount(id domain.ManagerID, userID domain.UserID) string {
	return "user:" + id.String() + ":" + strconv.FormatUint(uint64(userID), 10)
}

func stakeAccount(id domain.ManagerID, userID domain.UserID) string {
	return "stake:" + id.String() + ":" + strconv.FormatUint(uint64(userID), 10)
}
