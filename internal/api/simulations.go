package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/backtester"
	"github.com/atlas-desktop/strategy-simulator/internal/repository"
	"github.com/atlas-desktop/strategy-simulator/internal/workers"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateSimulation is returned when a request reuses an active ID
	ErrDuplicateSimulation = errors.New("simulation id already in use")
	// ErrSimulationNotComplete is returned when trades are requested before the run finished
	ErrSimulationNotComplete = errors.New("simulation not complete")
	// ErrSimulationFinished is returned when cancelling a run that already ended
	ErrSimulationFinished = errors.New("simulation already finished")
)

// SimulationView is the API representation of a simulation
type SimulationView struct {
	ID          string                    `json:"id"`
	Status      types.SimulationStatus    `json:"status"`
	SubmittedAt time.Time                 `json:"submittedAt,omitempty"`
	Progress    *types.SimulationProgress `json:"progress,omitempty"`
	Result      *types.SimulationResult   `json:"result,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// job tracks one submitted simulation until its result is stored
type job struct {
	id          string
	request     types.SimulationRequest
	status      types.SimulationStatus
	submittedAt time.Time
	engine      *backtester.Engine
	cancel      context.CancelFunc
	result      *types.SimulationResult
	err         string
}

// SimulationManager runs simulations on the worker pool and keeps their state
type SimulationManager struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	provider backtester.HistoricalDataProvider
	opts     backtester.EngineOptions
	pool     *workers.Pool
	store    repository.ResultStore
	hub      *Hub
	metrics  *Metrics
	jobs     map[string]*job
}

// NewSimulationManager wires the manager. hub and metrics may be nil.
func NewSimulationManager(
	logger *zap.Logger,
	provider backtester.HistoricalDataProvider,
	opts backtester.EngineOptions,
	pool *workers.Pool,
	store repository.ResultStore,
	hub *Hub,
	metrics *Metrics,
) *SimulationManager {
	return &SimulationManager{
		logger:   logger,
		provider: provider,
		opts:     opts,
		pool:     pool,
		store:    store,
		hub:      hub,
		metrics:  metrics,
		jobs:     make(map[string]*job),
	}
}

// prepare validates the request and registers a job for it
func (m *SimulationManager) prepare(req *types.SimulationRequest, status types.SimulationStatus) (*job, error) {
	if err := backtester.ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[req.ID]; ok && !terminal(existing.status) {
		return nil, ErrDuplicateSimulation
	}
	j := &job{
		id:          req.ID,
		request:     *req,
		status:      status,
		submittedAt: time.Now(),
	}
	m.jobs[j.id] = j
	if m.metrics != nil {
		m.metrics.simulationStarted()
	}
	return j, nil
}

// Submit queues a simulation on the worker pool and returns immediately
func (m *SimulationManager) Submit(req *types.SimulationRequest) (SimulationView, error) {
	j, err := m.prepare(req, types.StatusQueued)
	if err != nil {
		return SimulationView{}, err
	}

	err = m.pool.SubmitFunc(func(ctx context.Context) error {
		_, err := m.execute(ctx, j)
		return err
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, j.id)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.activeSims.Dec()
			if errors.Is(err, workers.ErrQueueFull) {
				m.metrics.queueRejections.Inc()
			}
		}
		return SimulationView{}, err
	}

	m.logger.Info("Simulation queued",
		zap.String("id", j.id),
		zap.String("strategy", string(j.request.Strategy.StrategyType)),
	)
	view := m.view(j)
	m.publish(j.id, MsgTypeSimulationQueued, view)
	return view, nil
}

// Run executes a simulation on the caller's goroutine and returns its result
func (m *SimulationManager) Run(ctx context.Context, req *types.SimulationRequest) (*types.SimulationResult, error) {
	j, err := m.prepare(req, types.StatusIdle)
	if err != nil {
		return nil, err
	}
	return m.execute(ctx, j)
}

func (m *SimulationManager) execute(ctx context.Context, j *job) (*types.SimulationResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := backtester.NewEngine(m.logger.With(zap.String("simulation", j.id)), m.provider, m.opts)

	m.mu.Lock()
	if j.status == types.StatusCancelled {
		m.mu.Unlock()
		return nil, context.Canceled
	}
	j.engine = engine
	j.cancel = cancel
	j.status = types.StatusRunning
	m.mu.Unlock()

	done := make(chan struct{})
	forwarded := make(chan struct{})
	go m.forwardProgress(j.id, engine, done, forwarded)

	req := j.request
	result, err := engine.Run(ctx, &req)
	close(done)
	<-forwarded

	status := types.StatusComplete
	switch {
	case err == nil:
		if saveErr := m.store.Save(context.Background(), result); saveErr != nil {
			m.logger.Error("Failed to store simulation result", zap.String("id", j.id), zap.Error(saveErr))
		}
	case errors.Is(err, context.Canceled):
		status = types.StatusCancelled
	default:
		status = types.StatusFailed
	}

	m.mu.Lock()
	j.status = status
	j.engine = nil
	j.cancel = nil
	j.result = result
	if err != nil {
		j.err = err.Error()
	}
	view := m.viewLocked(j)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.simulationFinished(req.Strategy.StrategyType, status, result)
	}

	if err != nil {
		m.publish(j.id, MsgTypeSimulationFailed, view)
		return nil, err
	}
	m.publish(j.id, MsgTypeSimulationComplete, view)
	return result, nil
}

// forwardProgress relays engine progress to the hub until done is closed
func (m *SimulationManager) forwardProgress(id string, engine *backtester.Engine, done <-chan struct{}, forwarded chan<- struct{}) {
	defer close(forwarded)
	updates := engine.ProgressChan()
	for {
		select {
		case p := <-updates:
			m.publish(id, MsgTypeSimulationProgress, p)
		case <-done:
			for {
				select {
				case p := <-updates:
					m.publish(id, MsgTypeSimulationProgress, p)
				default:
					return
				}
			}
		}
	}
}

func (m *SimulationManager) publish(id string, msgType MessageType, data interface{}) {
	if m.hub != nil {
		m.hub.PublishSimulation(id, msgType, data)
	}
}

// Get returns the live state of a tracked simulation or the stored result
func (m *SimulationManager) Get(ctx context.Context, id string) (SimulationView, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	var view SimulationView
	if ok {
		view = m.viewLocked(j)
	}
	m.mu.RUnlock()
	if ok {
		return view, nil
	}

	result, err := m.store.Get(ctx, id)
	if err != nil {
		return SimulationView{}, err
	}
	return SimulationView{ID: id, Status: types.StatusComplete, Result: result}, nil
}

// Trades returns the trade log of a finished simulation
func (m *SimulationManager) Trades(ctx context.Context, id string) ([]types.SimulatedTrade, error) {
	view, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Result == nil {
		return nil, ErrSimulationNotComplete
	}
	return view.Result.Trades, nil
}

// MonteCarlo resamples the closed trades of a finished simulation
func (m *SimulationManager) MonteCarlo(ctx context.Context, id string, cfg backtester.MonteCarloConfig) (*backtester.MonteCarloReport, error) {
	view, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Result == nil {
		return nil, ErrSimulationNotComplete
	}
	return backtester.NewMonteCarloSimulator(m.logger, cfg).Run(view.Result)
}

// List returns stored results, newest first
func (m *SimulationManager) List(ctx context.Context, limit int) ([]*types.SimulationResult, error) {
	return m.store.List(ctx, limit)
}

// Cancel stops a queued or running simulation
func (m *SimulationManager) Cancel(id string) (SimulationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return SimulationView{}, repository.ErrSimulationNotFound
	}
	if terminal(j.status) {
		return m.viewLocked(j), ErrSimulationFinished
	}

	if j.cancel != nil {
		j.cancel()
	} else {
		// Still queued; the worker skips it when dequeued.
		j.status = types.StatusCancelled
		if m.metrics != nil {
			m.metrics.simulationFinished(j.request.Strategy.StrategyType, types.StatusCancelled, nil)
		}
	}
	m.logger.Info("Simulation cancel requested", zap.String("id", id))
	return m.viewLocked(j), nil
}

// Active returns the number of queued or running simulations
func (m *SimulationManager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.jobs {
		if !terminal(j.status) {
			n++
		}
	}
	return n
}

// HandleCommand serves WebSocket commands: status and cancel
func (m *SimulationManager) HandleCommand(cmd Command) (interface{}, error) {
	switch cmd.Action {
	case "status":
		return m.Get(context.Background(), cmd.ID)
	case "cancel":
		return m.Cancel(cmd.ID)
	default:
		return nil, fmt.Errorf("unknown action %q", cmd.Action)
	}
}

func (m *SimulationManager) view(j *job) SimulationView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewLocked(j)
}

func (m *SimulationManager) viewLocked(j *job) SimulationView {
	v := SimulationView{
		ID:          j.id,
		Status:      j.status,
		SubmittedAt: j.submittedAt,
		Result:      j.result,
		Error:       j.err,
	}
	if j.engine != nil {
		v.Progress = j.engine.Progress()
		if s := v.Progress.Status; s != types.StatusIdle {
			v.Status = s
		}
	}
	return v
}

func terminal(s types.SimulationStatus) bool {
	switch s {
	case types.StatusComplete, types.StatusFailed, types.StatusCancelled:
		return true
	}
	return false
}
