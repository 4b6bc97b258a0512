package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-remedy/internal/api"
	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
	"github.com/miradorstack/mirador-remedy/internal/state"
	"github.com/miradorstack/mirador-remedy/internal/utils"
)

// ErrResolutionInProgress is returned when a trigger arrives while another
// resolution is still running.
var ErrResolutionInProgress = errors.New("resolution already in progress")

// latencyLogEvery is how many resolutions pass between attempt latency logs.
const latencyLogEvery = 20

// HistoryRepo defines the resolution history operations the service needs.
type HistoryRepo interface {
	Record(ctx context.Context, res models.Resolution) error
	ListRecent(ctx context.Context, n int) ([]models.Resolution, error)
	DeleteOlderThan(ctx context.Context, d time.Duration) (int64, error)
}

// RemedyService serialises trigger events onto the controller, persists
// what was learned and implements the gRPC Remediation service.
type RemedyService struct {
	logger     *slog.Logger
	controller *engine.Controller
	store      state.Store
	history    HistoryRepo
	latencies  *utils.LatencyTracker
	// resolved counts finished resolutions; the latency ring stops growing.
	resolved atomic.Int64

	// resolving is held for the duration of one resolution.
	resolving sync.Mutex
}

var _ api.RemediationServer = (*RemedyService)(nil)

// NewRemedyService constructs the service facade. store and history may be nil.
func NewRemedyService(logger *slog.Logger, controller *engine.Controller, store state.Store, history HistoryRepo) *RemedyService {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = state.NopStore{}
	}
	return &RemedyService{
		logger:     logger,
		controller: controller,
		store:      store,
		history:    history,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// Resolve runs one resolution against target unless another is in flight.
func (s *RemedyService) Resolve(ctx context.Context, target models.Target) (models.Resolution, error) {
	if !s.resolving.TryLock() {
		return models.Resolution{TargetID: target.ID}, ErrResolutionInProgress
	}
	defer s.resolving.Unlock()

	res, err := s.controller.Resolve(ctx, target)
	for _, a := range res.Trail {
		s.latencies.Observe(a.Duration)
	}
	if n := s.resolved.Add(1); n%latencyLogEvery == 0 && s.latencies.Count() > 0 {
		summary := s.latencies.Summary()
		s.logger.Info("attempt latency", slog.Duration("p50", summary.P50), slog.Duration("p95", summary.P95), slog.Int("samples", summary.Count))
	}

	// Persist with a fresh context so a canceled trigger still saves what it learned.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if len(res.Trail) > 0 {
		if perr := state.Persist(saveCtx, s.store, s.controller.Registry()); perr != nil {
			s.logger.Warn("persist action state failed", slog.Any("error", utils.WrapOp("state.persist", perr)))
		}
	}
	if s.history != nil && res.ID != "" {
		if herr := s.history.Record(saveCtx, res); herr != nil {
			s.logger.Warn("record history failed", slog.Any("error", utils.WrapOp("history.record", herr)))
		}
	}
	return res, err
}

// Actions returns every registered action with its statistics.
func (s *RemedyService) Actions() []models.Action {
	return s.controller.Registry().Actions()
}

// SetActionEnabled toggles an action and persists the change.
func (s *RemedyService) SetActionEnabled(ctx context.Context, name string, enabled bool) error {
	if err := s.controller.Registry().SetEnabled(name, enabled); err != nil {
		return err
	}
	return state.Persist(ctx, s.store, s.controller.Registry())
}

// Stats builds the detailed statistics report.
func (s *RemedyService) Stats() models.StatsReport {
	actions := s.Actions()
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].SuccessRate() > actions[j].SuccessRate()
	})
	summary := s.latencies.Summary()
	stats := s.controller.Stats()
	return models.StatsReport{
		Session:    stats.Totals(),
		Uptime:     stats.Uptime(),
		Actions:    actions,
		AttemptP50: summary.P50,
		AttemptP95: summary.P95,
	}
}

// RecentResolutions lists the newest n resolutions from history.
func (s *RemedyService) RecentResolutions(ctx context.Context, n int) ([]models.Resolution, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListRecent(ctx, n)
}

// PruneHistory deletes resolutions older than retention.
func (s *RemedyService) PruneHistory(ctx context.Context, retention time.Duration) (int64, error) {
	if s.history == nil || retention <= 0 {
		return 0, nil
	}
	n, err := s.history.DeleteOlderThan(ctx, retention)
	if err != nil {
		return 0, utils.NewAppError("history.prune", "delete expired resolutions", err)
	}
	if n > 0 {
		s.logger.Info("pruned resolution history", slog.Int64("deleted", n), slog.Duration("retention", retention))
	}
	return n, nil
}

// Trigger resolves the target named in the request.
func (s *RemedyService) Trigger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	target, err := api.FromProtoTriggerRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Debug("Trigger called", slog.String("target_id", target.ID))
	res, err := s.Resolve(ctx, target)

	var exhausted *engine.ResolutionExhaustedError
	switch {
	case err == nil, errors.As(err, &exhausted):
		return api.ToProtoResolution(res), nil
	case errors.Is(err, ErrResolutionInProgress):
		return nil, status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, engine.ErrNoActionsAvailable):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, engine.ErrResolutionCanceled):
		return nil, status.Error(codes.Canceled, err.Error())
	default:
		s.logger.Error("trigger failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "trigger failed")
	}
}

// ListActions returns the action table.
func (s *RemedyService) ListActions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return api.ToProtoActions(s.Actions()), nil
}

// UpdateAction enables or disables an action.
func (s *RemedyService) UpdateAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	name, enabled, err := api.FromProtoUpdateActionRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.SetActionEnabled(ctx, name, enabled); err != nil {
		if errors.Is(err, engine.ErrUnknownAction) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		s.logger.Error("update action failed", slog.String("action", name), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to update action")
	}
	return api.ToProtoActions(s.Actions()), nil
}

// GetStats returns the detailed statistics report.
func (s *RemedyService) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return api.ToProtoStats(s.Stats()), nil
}

// GetStatus returns the controller's latest status snapshot.
func (s *RemedyService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return api.ToProtoStatus(s.controller.Status()), nil
}

// ListResolutions returns recent resolutions from history.
func (s *RemedyService) ListResolutions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.history == nil {
		return nil, status.Error(codes.FailedPrecondition, "history repository not configured")
	}
	limit, err := api.FromProtoListResolutionsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	list, err := s.history.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("list resolutions failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list resolutions")
	}
	return api.ToProtoResolutions(list), nil
}

// HealthCheck returns the current health state.
func (s *RemedyService) HealthCheck(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return api.ToProtoHealth("SERVING"), nil
}
