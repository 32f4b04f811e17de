package entity

import "strings"

type Phase string

const (
	PhaseNotStarted Phase = "not-started"
	PhaseInProgress Phase = "in-progress"
)

// Players holds the display names; index 0 plays X, index 1 plays O.
type Players [2]string

// Scores holds the rounds won by each player, in Players order.
type Scores [2]int

// Match is the state of a hot-seat match: the move history of the current round,
// the displayed move, the players and their scores.
type Match struct {
	history          []Board
	moveIndex        int
	players          Players
	scores           Scores
	phase            Phase
	validationFailed bool
}

func NewMatch() *Match {
	return &Match{
		history: []Board{{}},
		phase:   PhaseNotStarted,
	}
}

// StartMatch - begins a new match. Both names are required after trimming;
// otherwise the validation flag is raised and the match stays not started.
func (that *Match) StartMatch(name1, name2 string) bool {
	if that.IsInProgress() {
		return false
	}

	name1, name2 = strings.TrimSpace(name1), strings.TrimSpace(name2)
	if name1 == "" || name2 == "" {
		that.validationFailed = true
		return false
	}

	that.players = Players{name1, name2}
	that.phase = PhaseInProgress
	that.scores = Scores{}
	that.validationFailed = false
	that.resetRound()

	return true
}

// ApplyMove - places the mover's mark on cell. Moves on an occupied cell, outside the
// board or after the round has ended are ignored and reported as false.
func (that *Match) ApplyMove(cell int) bool {
	if !that.IsInProgress() || !IsValidCell(cell) {
		return false
	}

	current := that.CurrentBoard()
	if !Evaluate(current).IsOngoing() || current[cell] != EmptyCell {
		return false
	}

	next := current.With(cell, that.NextMark())

	// playing from an earlier move drops the moves after it
	that.history = append(that.history[:that.moveIndex+1:that.moveIndex+1], next)
	that.moveIndex = len(that.history) - 1

	if result := Evaluate(next); result.IsWin() {
		that.scores[scoreIndex(result.Winner)]++
	}

	return true
}

// JumpTo - displays the board after index moves. History and scores are untouched.
func (that *Match) JumpTo(index int) bool {
	if !that.IsInProgress() || index < 0 || index >= len(that.history) {
		return false
	}

	that.moveIndex = index

	return true
}

// RestartRound - clears the board, keeping players and scores.
func (that *Match) RestartRound() bool {
	if !that.IsInProgress() {
		return false
	}

	that.resetRound()

	return true
}

// QuitMatch - returns to the name entry. Players and history are overwritten by the next StartMatch.
func (that *Match) QuitMatch() bool {
	if !that.IsInProgress() {
		return false
	}

	that.phase = PhaseNotStarted
	that.scores = Scores{}

	return true
}

func (that *Match) resetRound() {
	that.history = []Board{{}}
	that.moveIndex = 0
}

func (that *Match) CurrentBoard() Board {
	return that.history[that.moveIndex]
}

func (that *Match) MoveIndex() int {
	return that.moveIndex
}

// History returns a copy of the boards of the current round.
func (that *Match) History() []Board {
	history := make([]Board, len(that.history))
	copy(history, that.history)

	return history
}

func (that *Match) Players() Players {
	return that.players
}

func (that *Match) Scores() Scores {
	return that.scores
}

func (that *Match) Phase() Phase {
	return that.phase
}

func (that *Match) IsInProgress() bool {
	return that.phase == PhaseInProgress
}

func (that *Match) ValidationFailed() bool {
	return that.validationFailed
}

func (that *Match) NextMark() Cell {
	return MarkForMove(that.moveIndex)
}

// NextPlayer returns the name of the player whose turn it is.
func (that *Match) NextPlayer() string {
	return that.players[scoreIndex(that.NextMark())]
}

// Result evaluates the displayed board.
func (that *Match) Result() Result {
	return Evaluate(that.CurrentBoard())
}

// Clone returns a deep copy of the match.
func (that *Match) Clone() *Match {
	clone := *that
	clone.history = that.History()

	return &clone
}

func scoreIndex(mark Cell) int {
	if mark == PlayerO {
		return 1
	}
	return 0
}
