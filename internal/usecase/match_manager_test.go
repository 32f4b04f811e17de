package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/view"
	mockedUseCase "github.com/rocketscienceinc/tictactoe-hotseat/mocks/usecase"
)

var errRedisDown = errors.New("redis down")

type fakeRecorder struct {
	mu               sync.Mutex
	moves            int
	rounds           map[entity.Outcome]int
	validationFailed int
	liveSessions     int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{rounds: make(map[entity.Outcome]int)}
}

func (that *fakeRecorder) MoveApplied() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.moves++
}

func (that *fakeRecorder) RoundFinished(outcome entity.Outcome) {
	that.mu.Lock()
	defer that.mu.Unlock()
	if outcome != entity.OutcomeOngoing {
		that.rounds[outcome]++
	}
}

func (that *fakeRecorder) ValidationFailed() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.validationFailed++
}

func (that *fakeRecorder) SessionOpened() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.liveSessions++
}

func (that *fakeRecorder) SessionClosed() {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.liveSessions--
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*MatchManager, repository.SessionRepository, *fakeRecorder) {
	t.Helper()

	repo := repository.NewMemorySessionRepository(time.Hour)
	recorder := newFakeRecorder()

	return NewMatchManager(discardLogger(), repo, recorder), repo, recorder
}

func newStartedSession(t *testing.T, manager *MatchManager) string {
	t.Helper()

	ctx := context.Background()

	state, err := manager.GetOrCreateSession(ctx, "")
	require.NoError(t, err)

	_, err = manager.StartMatch(ctx, state.SessionID, "Alice", "Bob")
	require.NoError(t, err)

	return state.SessionID
}

func TestMatchManager_GetOrCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a new session when id is empty", func(t *testing.T) {
		// Given: a manager over an empty repository
		manager, repo, _ := newTestManager(t)

		// When: GetOrCreateSession is called without an id
		state, err := manager.GetOrCreateSession(ctx, "")

		// Then: a new not-started session is created and stored
		require.NoError(t, err)
		assert.NotEmpty(t, state.SessionID)
		assert.Equal(t, entity.PhaseNotStarted, state.Phase)
		assert.True(t, state.Ascending)

		stored, err := repo.GetByID(ctx, state.SessionID)
		require.NoError(t, err)
		assert.Equal(t, state.SessionID, stored.ID)
	})

	t.Run("Returns the existing session", func(t *testing.T) {
		// Given: a started session
		manager, _, _ := newTestManager(t)
		id := newStartedSession(t, manager)

		// When: GetOrCreateSession is called with its id
		state, err := manager.GetOrCreateSession(ctx, id)

		// Then: the same session is returned
		require.NoError(t, err)
		assert.Equal(t, id, state.SessionID)
		assert.Equal(t, entity.PhaseInProgress, state.Phase)
	})

	t.Run("Creates a new session when id is unknown", func(t *testing.T) {
		// Given: a manager over an empty repository
		manager, _, _ := newTestManager(t)

		// When: GetOrCreateSession is called with an expired id
		state, err := manager.GetOrCreateSession(ctx, "expired")

		// Then: a fresh session with another id is returned
		require.NoError(t, err)
		assert.NotEqual(t, "expired", state.SessionID)
		assert.NotEmpty(t, state.SessionID)
	})

	t.Run("Returns error if repository fails to read", func(t *testing.T) {
		// Given: a repository that is down
		repo := mockedUseCase.NewMocksessionRepo(t)
		manager := NewMatchManager(discardLogger(), repo, newFakeRecorder())

		repo.EXPECT().
			GetByID(mock.Anything, "session123").
			Return((*entity.Session)(nil), errRedisDown).
			Once()

		// When: GetOrCreateSession is called
		_, err := manager.GetOrCreateSession(ctx, "session123")

		// Then: the error is returned and no session is created
		require.ErrorIs(t, err, errRedisDown)
	})

	t.Run("Returns error if repository fails to save", func(t *testing.T) {
		// Given: a repository that refuses writes
		repo := mockedUseCase.NewMocksessionRepo(t)
		manager := NewMatchManager(discardLogger(), repo, newFakeRecorder())

		repo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Session")).
			Return(errRedisDown).
			Once()

		// When: GetOrCreateSession is called without an id
		_, err := manager.GetOrCreateSession(ctx, "")

		// Then: the error is returned
		require.ErrorIs(t, err, errRedisDown)
	})
}

func TestMatchManager_Commands(t *testing.T) {
	ctx := context.Background()

	t.Run("Plays a round to a win and saves every change", func(t *testing.T) {
		// Given: a started session
		manager, repo, recorder := newTestManager(t)
		id := newStartedSession(t, manager)

		// When: X completes the top row
		var state view.State
		var err error
		for _, cell := range []int{0, 3, 1, 4, 2} {
			state, err = manager.ApplyMove(ctx, id, cell)
			require.NoError(t, err)
		}

		// Then: X wins, the score is counted and the repository holds the board
		assert.Equal(t, "X a gagné", state.Status)
		assert.Equal(t, entity.Scores{1, 0}, state.Scores)
		assert.Equal(t, []int{0, 1, 2}, state.WinningLine)

		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 5, stored.Match.MoveIndex())
		assert.Equal(t, entity.Scores{1, 0}, stored.Match.Scores())

		assert.Equal(t, 5, recorder.moves)
		assert.Equal(t, 1, recorder.rounds[entity.OutcomeWin])
	})

	t.Run("Ignored moves are not saved", func(t *testing.T) {
		// Given: a stored session with the center taken
		repo := mockedUseCase.NewMocksessionRepo(t)
		manager := NewMatchManager(discardLogger(), repo, newFakeRecorder())

		session := entity.NewSession("session123")
		require.True(t, session.Match.StartMatch("Alice", "Bob"))
		require.True(t, session.Match.ApplyMove(4))

		repo.EXPECT().
			GetByID(mock.Anything, "session123").
			Return(session, nil).
			Once()

		// When: the occupied center is played again
		state, err := manager.ApplyMove(ctx, "session123", 4)

		// Then: nothing is saved and the state is unchanged
		require.NoError(t, err)
		assert.Equal(t, 1, state.MoveIndex)
		repo.AssertNotCalled(t, "CreateOrUpdate", mock.Anything, mock.Anything)
	})

	t.Run("Blank names are refused and counted", func(t *testing.T) {
		// Given: a new session
		manager, _, recorder := newTestManager(t)
		created, err := manager.GetOrCreateSession(ctx, "")
		require.NoError(t, err)

		// When: the match is started twice with a blank name
		state, err := manager.StartMatch(ctx, created.SessionID, "Alice", "  ")
		require.NoError(t, err)
		_, err = manager.StartMatch(ctx, created.SessionID, "", "Bob")
		require.NoError(t, err)

		// Then: the validation message is shown and the match did not start
		assert.True(t, state.ValidationFailed)
		assert.Equal(t, "Veuillez entrer le nom des deux joueurs.", state.ValidationMessage)
		assert.Equal(t, entity.PhaseNotStarted, state.Phase)
		assert.Equal(t, 2, recorder.validationFailed)
	})

	t.Run("Navigation and display commands are persisted", func(t *testing.T) {
		// Given: a session with three moves
		manager, repo, _ := newTestManager(t)
		id := newStartedSession(t, manager)
		for _, cell := range []int{4, 0, 8} {
			_, err := manager.ApplyMove(ctx, id, cell)
			require.NoError(t, err)
		}

		// When: the history is rewound, reversed and then the round restarted
		state, err := manager.JumpTo(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, state.MoveIndex)

		state, err = manager.ToggleHistoryOrder(ctx, id)
		require.NoError(t, err)
		assert.False(t, state.Ascending)

		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Match.MoveIndex())
		assert.False(t, stored.Ascending)

		state, err = manager.RestartRound(ctx, id)
		require.NoError(t, err)

		// Then: the round is empty and the players are kept
		assert.Equal(t, 0, state.MoveIndex)
		assert.Len(t, state.Moves, 1)
		assert.Equal(t, entity.Players{"Alice", "Bob"}, state.Players)
	})

	t.Run("Quit returns to the name entry", func(t *testing.T) {
		// Given: a session where X already won a round
		manager, _, _ := newTestManager(t)
		id := newStartedSession(t, manager)
		for _, cell := range []int{0, 3, 1, 4, 2} {
			_, err := manager.ApplyMove(ctx, id, cell)
			require.NoError(t, err)
		}

		// When: the match is quit
		state, err := manager.QuitMatch(ctx, id)

		// Then: the phase is not-started and the scores are reset
		require.NoError(t, err)
		assert.Equal(t, entity.PhaseNotStarted, state.Phase)
		assert.Equal(t, entity.Scores{0, 0}, state.Scores)
	})

	t.Run("Commands on an unknown session fail", func(t *testing.T) {
		// Given: an empty repository
		manager, _, _ := newTestManager(t)

		// When: a move is played on an unknown session
		_, err := manager.ApplyMove(ctx, "missing", 4)

		// Then: ErrSessionNotFound is returned
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Returns error if the session cannot be saved", func(t *testing.T) {
		// Given: a repository that refuses writes
		repo := mockedUseCase.NewMocksessionRepo(t)
		manager := NewMatchManager(discardLogger(), repo, newFakeRecorder())

		session := entity.NewSession("session123")
		require.True(t, session.Match.StartMatch("Alice", "Bob"))

		repo.EXPECT().
			GetByID(mock.Anything, "session123").
			Return(session, nil).
			Once()
		repo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Session")).
			Return(errRedisDown).
			Once()

		// When: a move is played
		_, err := manager.ApplyMove(ctx, "session123", 4)

		// Then: the save error is returned
		require.ErrorIs(t, err, errRedisDown)
	})
}

func TestMatchManager_Subscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("Subscribers of a session receive every change", func(t *testing.T) {
		// Given: two connections subscribed to the same session
		manager, _, recorder := newTestManager(t)
		id := newStartedSession(t, manager)

		var mu sync.Mutex
		var first, second []view.State

		unsubscribeFirst, err := manager.Subscribe(ctx, id, func(state view.State) {
			mu.Lock()
			first = append(first, state)
			mu.Unlock()
		})
		require.NoError(t, err)
		unsubscribeSecond, err := manager.Subscribe(ctx, id, func(state view.State) {
			mu.Lock()
			second = append(second, state)
			mu.Unlock()
		})
		require.NoError(t, err)
		assert.Equal(t, 1, recorder.liveSessions)

		// When: a move is played
		_, err = manager.ApplyMove(ctx, id, 4)
		require.NoError(t, err)

		// Then: both connections are notified
		mu.Lock()
		require.Len(t, first, 1)
		require.Len(t, second, 1)
		assert.Equal(t, entity.PlayerX, first[0].Board[4])
		mu.Unlock()

		// When: both connections close
		unsubscribeFirst()
		unsubscribeSecond()
		unsubscribeSecond()

		// Then: the session is no longer live but is still stored
		assert.Equal(t, 0, recorder.liveSessions)
		manager.liveMutex.Lock()
		assert.Empty(t, manager.live)
		manager.liveMutex.Unlock()

		state, err := manager.State(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, state.Board[4])
	})

	t.Run("Subscribe to an unknown session fails", func(t *testing.T) {
		// Given: an empty repository
		manager, _, _ := newTestManager(t)

		// When: subscribing to an unknown id
		unsubscribe, err := manager.Subscribe(ctx, "missing", func(view.State) {})

		// Then: ErrSessionNotFound is returned
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.Nil(t, unsubscribe)
	})

	t.Run("Concurrent moves on one cell are applied once", func(t *testing.T) {
		// Given: a subscribed session
		manager, repo, _ := newTestManager(t)
		id := newStartedSession(t, manager)
		unsubscribe, err := manager.Subscribe(ctx, id, func(view.State) {})
		require.NoError(t, err)
		defer unsubscribe()

		// When: ten connections play the center at once
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = manager.ApplyMove(ctx, id, 4)
			}()
		}
		wg.Wait()

		// Then: exactly one move is stored
		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Match.MoveIndex())
	})
}

func TestMatchManager_EndSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Ends an existing session", func(t *testing.T) {
		// Given: a started session
		manager, _, _ := newTestManager(t)
		id := newStartedSession(t, manager)

		// When: EndSession is called
		err := manager.EndSession(ctx, id)

		// Then: the session is gone
		require.NoError(t, err)
		_, err = manager.State(ctx, id)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Returns ErrSessionNotFound for an unknown session", func(t *testing.T) {
		// Given: an empty repository
		manager, _, _ := newTestManager(t)

		// When: EndSession is called with an unknown id
		err := manager.EndSession(ctx, "missing")

		// Then: ErrSessionNotFound is returned
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})
}

// gatedRepo blocks the calls it is armed for until the gate is opened.
type gatedRepo struct {
	repository.SessionRepository

	saveGate    chan struct{}
	saveEntered chan struct{}
	getGates    map[string]chan struct{}
	getEntered  chan string
}

func (that *gatedRepo) CreateOrUpdate(ctx context.Context, session *entity.Session) error {
	if that.saveGate != nil {
		that.saveEntered <- struct{}{}
		<-that.saveGate
	}

	return that.SessionRepository.CreateOrUpdate(ctx, session)
}

func (that *gatedRepo) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	if gate, ok := that.getGates[id]; ok {
		that.getEntered <- id
		<-gate
	}

	return that.SessionRepository.GetByID(ctx, id)
}

func TestMatchManager_EndSessionDuringSave(t *testing.T) {
	ctx := context.Background()

	t.Run("A save in flight does not bring the session back", func(t *testing.T) {
		// Given: a stored session whose next save blocks
		memory := repository.NewMemorySessionRepository(time.Hour)
		session := entity.NewSession("session123")
		require.NoError(t, memory.CreateOrUpdate(ctx, session))

		repo := &gatedRepo{
			SessionRepository: memory,
			saveGate:          make(chan struct{}),
			saveEntered:       make(chan struct{}, 1),
		}
		manager := NewMatchManager(discardLogger(), repo, newFakeRecorder())

		startErr := make(chan error, 1)
		go func() {
			_, err := manager.StartMatch(ctx, "session123", "Alice", "Bob")
			startErr <- err
		}()
		<-repo.saveEntered

		// When: the session is ended while the start is being saved
		endErr := make(chan error, 1)
		go func() {
			endErr <- manager.EndSession(ctx, "session123")
		}()
		close(repo.saveGate)

		// Then: both calls succeed and the session stays deleted
		require.NoError(t, <-startErr)
		require.NoError(t, <-endErr)

		_, err := memory.GetByID(ctx, "session123")
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Subscribed connections cannot write to an ended session", func(t *testing.T) {
		// Given: a subscribed session
		manager, repo, _ := newTestManager(t)
		id := newStartedSession(t, manager)
		unsubscribe, err := manager.Subscribe(ctx, id, func(view.State) {})
		require.NoError(t, err)
		defer unsubscribe()

		// When: the session is ended and the connection plays a move
		require.NoError(t, manager.EndSession(ctx, id))
		_, err = manager.ApplyMove(ctx, id, 4)

		// Then: the move is refused and nothing is stored again
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		_, err = repo.GetByID(ctx, id)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})
}

func TestMatchManager_SlowLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("A slow load does not block other sessions", func(t *testing.T) {
		// Given: two stored sessions, the first one slow to load
		memory := repository.NewMemorySessionRepository(time.Hour)
		for _, id := range []string{"slow", "fast"} {
			session := entity.NewSession(id)
			require.True(t, session.Match.StartMatch("Alice", "Bob"))
			require.NoError(t, memory.CreateOrUpdate(ctx, session))
		}

		slowGate := make(chan struct{})
		repo := &gatedRepo{
			SessionRepository: memory,
			getGates:          map[string]chan struct{}{"slow": slowGate},
			getEntered:        make(chan string, 1),
		}
		manager := NewMatchManager(discardLogger(), repo, newFakeRecorder())

		slowErr := make(chan error, 1)
		go func() {
			_, err := manager.ApplyMove(ctx, "slow", 0)
			slowErr <- err
		}()
		<-repo.getEntered

		// When: a move is played on the other session
		done := make(chan view.State, 1)
		go func() {
			state, err := manager.ApplyMove(ctx, "fast", 4)
			assert.NoError(t, err)
			done <- state
		}()

		// Then: it completes while the slow load is still pending
		select {
		case state := <-done:
			assert.Equal(t, entity.PlayerX, state.Board[4])
		case <-time.After(2 * time.Second):
			t.Fatal("move on another session waited for the slow load")
		}

		close(slowGate)
		require.NoError(t, <-slowErr)
	})
}
