package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/view"
)

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

type recorder interface {
	MoveApplied()
	RoundFinished(outcome entity.Outcome)
	ValidationFailed()
	SessionOpened()
	SessionClosed()
}

// liveSession is a session held in memory while connections or commands use it.
type liveSession struct {
	mu         sync.Mutex
	controller *tictactoe.GameController
	refs       int
	ended      bool
}

// MatchManager runs the commands of every session and keeps the repository up to date.
type MatchManager struct {
	logger      *slog.Logger
	sessionRepo sessionRepo
	metrics     recorder

	liveMutex sync.Mutex
	live      map[string]*liveSession
	// endings counts EndSession calls, so a load that raced one is retried.
	endings uint64
}

func NewMatchManager(logger *slog.Logger, sessionRepo sessionRepo, metrics recorder) *MatchManager {
	return &MatchManager{
		logger:      logger,
		sessionRepo: sessionRepo,
		metrics:     metrics,

		live: make(map[string]*liveSession),
	}
}

// GetOrCreateSession - returns the session with id, or a new one when id is empty or has expired.
func (that *MatchManager) GetOrCreateSession(ctx context.Context, id string) (view.State, error) {
	log := that.logger.With("method", "GetOrCreateSession")

	if id != "" {
		state, err := that.State(ctx, id)
		if err == nil {
			return state, nil
		}

		if !errors.Is(err, apperror.ErrSessionNotFound) {
			return view.State{}, err
		}

		log.Info("session not found, new one created", "sessionID", id)
	}

	session := entity.NewSession(uuid.NewString())
	if err := that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return view.State{}, fmt.Errorf("failed to create session: %w", err)
	}

	log.Debug("session created", "sessionID", session.ID)

	return view.Render(session), nil
}

// Subscribe - registers listener on the session until the returned func is called.
func (that *MatchManager) Subscribe(ctx context.Context, id string, listener tictactoe.Listener) (func(), error) {
	live, err := that.acquire(ctx, id)
	if err != nil {
		return nil, err
	}

	live.mu.Lock()
	if live.ended {
		live.mu.Unlock()
		that.release(id, live)

		return nil, fmt.Errorf("failed to subscribe: %w", apperror.ErrSessionNotFound)
	}

	if live.controller.Listeners() == 0 {
		that.metrics.SessionOpened()
	}
	unsubscribe := live.controller.Subscribe(listener)
	live.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			live.mu.Lock()
			unsubscribe()
			if live.controller.Listeners() == 0 {
				that.metrics.SessionClosed()
			}
			live.mu.Unlock()

			that.release(id, live)
		})
	}, nil
}

func (that *MatchManager) StartMatch(ctx context.Context, id, name1, name2 string) (view.State, error) {
	return that.execute(ctx, id, "StartMatch", func(controller *tictactoe.GameController) bool {
		wasFlagged := controller.State().ValidationFailed
		if controller.StartMatch(name1, name2) {
			return true
		}

		flagged := controller.State().ValidationFailed
		if flagged {
			that.metrics.ValidationFailed()
		}

		return flagged != wasFlagged
	})
}

func (that *MatchManager) ApplyMove(ctx context.Context, id string, cell int) (view.State, error) {
	return that.execute(ctx, id, "ApplyMove", func(controller *tictactoe.GameController) bool {
		if !controller.ApplyMove(cell) {
			return false
		}

		that.metrics.MoveApplied()
		that.metrics.RoundFinished(controller.State().Result.Outcome)

		return true
	})
}

func (that *MatchManager) JumpTo(ctx context.Context, id string, index int) (view.State, error) {
	return that.execute(ctx, id, "JumpTo", func(controller *tictactoe.GameController) bool {
		return controller.JumpTo(index)
	})
}

func (that *MatchManager) RestartRound(ctx context.Context, id string) (view.State, error) {
	return that.execute(ctx, id, "RestartRound", func(controller *tictactoe.GameController) bool {
		return controller.RestartRound()
	})
}

func (that *MatchManager) QuitMatch(ctx context.Context, id string) (view.State, error) {
	return that.execute(ctx, id, "QuitMatch", func(controller *tictactoe.GameController) bool {
		return controller.QuitMatch()
	})
}

func (that *MatchManager) ToggleHistoryOrder(ctx context.Context, id string) (view.State, error) {
	return that.execute(ctx, id, "ToggleHistoryOrder", func(controller *tictactoe.GameController) bool {
		return controller.ToggleHistoryOrder()
	})
}

// State - renders the session without keeping it in memory.
func (that *MatchManager) State(ctx context.Context, id string) (view.State, error) {
	that.liveMutex.Lock()
	live, ok := that.live[id]
	that.liveMutex.Unlock()

	if ok {
		return live.controller.State(), nil
	}

	session, err := that.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return view.State{}, fmt.Errorf("failed to get session by id: %w", err)
	}

	return view.Render(session), nil
}

// EndSession - forgets the session. Commands already running finish first; connections
// still subscribed keep their listeners but further commands on the id fail with ErrSessionNotFound.
func (that *MatchManager) EndSession(ctx context.Context, id string) error {
	for {
		that.liveMutex.Lock()
		live := that.live[id]
		that.liveMutex.Unlock()

		if live != nil {
			live.mu.Lock()
		}

		that.liveMutex.Lock()
		if that.live[id] != live {
			// reloaded or evicted while waiting for the running command
			that.liveMutex.Unlock()
			if live != nil {
				live.mu.Unlock()
			}
			continue
		}

		err := that.endSessionLocked(ctx, id, live)

		that.liveMutex.Unlock()
		if live != nil {
			live.mu.Unlock()
		}

		return err
	}
}

// endSessionLocked runs with liveMutex held and, when live is set, its mu.
func (that *MatchManager) endSessionLocked(ctx context.Context, id string, live *liveSession) error {
	if err := that.sessionRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	that.endings++
	if live != nil {
		live.ended = true
		delete(that.live, id)
	}

	that.logger.Info("session ended", "sessionID", id)

	return nil
}

// execute runs command on the live session and saves the session when it changed.
func (that *MatchManager) execute(
	ctx context.Context,
	id, method string,
	command func(controller *tictactoe.GameController) bool,
) (view.State, error) {
	log := that.logger.With("method", method, "sessionID", id)

	live, err := that.acquire(ctx, id)
	if err != nil {
		return view.State{}, err
	}
	defer that.release(id, live)

	live.mu.Lock()
	defer live.mu.Unlock()

	if live.ended {
		return view.State{}, fmt.Errorf("failed to get session by id: %w", apperror.ErrSessionNotFound)
	}

	if !command(live.controller) {
		log.Debug("command ignored")
		return live.controller.State(), nil
	}

	if err = that.sessionRepo.CreateOrUpdate(ctx, live.controller.Snapshot()); err != nil {
		log.Error("failed to save session", "error", err)
		return view.State{}, fmt.Errorf("failed to save session: %w", err)
	}

	return live.controller.State(), nil
}

// acquire - returns the live session with id, loading it from the repository outside the lock.
func (that *MatchManager) acquire(ctx context.Context, id string) (*liveSession, error) {
	for {
		that.liveMutex.Lock()
		if live, ok := that.live[id]; ok {
			live.refs++
			that.liveMutex.Unlock()
			return live, nil
		}
		endings := that.endings
		that.liveMutex.Unlock()

		session, err := that.sessionRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get session by id: %w", err)
		}

		that.liveMutex.Lock()
		if live, ok := that.live[id]; ok {
			live.refs++
			that.liveMutex.Unlock()
			return live, nil
		}

		if that.endings != endings {
			that.liveMutex.Unlock()
			continue
		}

		live := &liveSession{
			controller: tictactoe.NewGameController(session),
			refs:       1,
		}
		that.live[id] = live
		that.liveMutex.Unlock()

		return live, nil
	}
}

func (that *MatchManager) release(id string, live *liveSession) {
	that.liveMutex.Lock()
	defer that.liveMutex.Unlock()

	live.refs--
	if live.refs == 0 && that.live[id] == live {
		delete(that.live, id)
	}
}
