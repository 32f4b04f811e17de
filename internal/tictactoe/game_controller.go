package tictactoe

import (
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/view"
)

// Listener receives the rendered state after every change.
type Listener func(state view.State)

// GameController is the command interface of one session. Every command that changes
// the session is followed by a notification to the subscribed listeners.
type GameController struct {
	mu      sync.Mutex
	session *entity.Session

	listenersMutex sync.RWMutex
	listeners      map[int]Listener
	nextListenerID int
}

func NewGameController(session *entity.Session) *GameController {
	return &GameController{
		session:   session,
		listeners: make(map[int]Listener),
	}
}

// Subscribe - registers listener. The returned func removes it.
func (that *GameController) Subscribe(listener Listener) func() {
	that.listenersMutex.Lock()
	id := that.nextListenerID
	that.nextListenerID++
	that.listeners[id] = listener
	that.listenersMutex.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			that.listenersMutex.Lock()
			delete(that.listeners, id)
			that.listenersMutex.Unlock()
		})
	}
}

func (that *GameController) Listeners() int {
	that.listenersMutex.RLock()
	defer that.listenersMutex.RUnlock()

	return len(that.listeners)
}

// StartMatch notifies on failure too, so the validation message is shown.
func (that *GameController) StartMatch(name1, name2 string) bool {
	var ok bool

	that.execute(func(session *entity.Session) bool {
		wasFlagged := session.Match.ValidationFailed()
		ok = session.Match.StartMatch(name1, name2)

		return ok || session.Match.ValidationFailed() != wasFlagged
	})

	return ok
}

func (that *GameController) ApplyMove(cell int) bool {
	return that.execute(func(session *entity.Session) bool {
		return session.Match.ApplyMove(cell)
	})
}

func (that *GameController) JumpTo(index int) bool {
	return that.execute(func(session *entity.Session) bool {
		return session.Match.JumpTo(index)
	})
}

func (that *GameController) RestartRound() bool {
	return that.execute(func(session *entity.Session) bool {
		return session.Match.RestartRound()
	})
}

func (that *GameController) QuitMatch() bool {
	return that.execute(func(session *entity.Session) bool {
		return session.Match.QuitMatch()
	})
}

func (that *GameController) ToggleHistoryOrder() bool {
	return that.execute(func(session *entity.Session) bool {
		session.ToggleHistoryOrder()
		return true
	})
}

// State renders the current session.
func (that *GameController) State() view.State {
	that.mu.Lock()
	defer that.mu.Unlock()

	return view.Render(that.session)
}

// Snapshot returns a deep copy of the session, safe to store.
func (that *GameController) Snapshot() *entity.Session {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.session.Clone()
}

// execute runs command under the session lock and notifies listeners when it reports a change.
func (that *GameController) execute(command func(session *entity.Session) bool) bool {
	that.mu.Lock()
	changed := command(that.session)
	if changed {
		that.session.UpdatedAt = time.Now()
	}
	state := view.Render(that.session)
	that.mu.Unlock()

	if changed {
		that.notify(state)
	}

	return changed
}

func (that *GameController) notify(state view.State) {
	that.listenersMutex.RLock()
	listeners := make([]Listener, 0, len(that.listeners))
	for _, listener := range that.listeners {
		listeners = append(listeners, listener)
	}
	that.listenersMutex.RUnlock()

	for _, listener := range listeners {
		listener(state)
	}
}
