package entity

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
)

// MatchState is the serialisable form of a Match.
type MatchState struct {
	History          []Board `json:"history"`
	MoveIndex        int     `json:"move_index"`
	Players          Players `json:"players"`
	Scores           Scores  `json:"scores"`
	Phase            Phase   `json:"phase"`
	ValidationFailed bool    `json:"validation_failed,omitempty"`
}

func (that *Match) State() MatchState {
	return MatchState{
		History:          that.History(),
		MoveIndex:        that.moveIndex,
		Players:          that.players,
		Scores:           that.scores,
		Phase:            that.phase,
		ValidationFailed: that.validationFailed,
	}
}

// RestoreMatch - rebuilds a match from its state, rejecting states that no sequence of moves could produce.
func RestoreMatch(state MatchState) (*Match, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}

	match := &Match{
		history:          make([]Board, len(state.History)),
		moveIndex:        state.MoveIndex,
		players:          state.Players,
		scores:           state.Scores,
		phase:            state.Phase,
		validationFailed: state.ValidationFailed,
	}
	copy(match.history, state.History)

	return match, nil
}

func (that MatchState) Validate() error {
	if that.Phase != PhaseNotStarted && that.Phase != PhaseInProgress {
		return fmt.Errorf("%w: unknown phase %q", apperror.ErrCorruptedState, that.Phase)
	}

	if len(that.History) == 0 {
		return fmt.Errorf("%w: history is empty", apperror.ErrCorruptedState)
	}

	if !that.History[0].IsEmpty() {
		return fmt.Errorf("%w: first board is not empty", apperror.ErrCorruptedState)
	}

	for i := 1; i < len(that.History); i++ {
		if err := validateStep(that.History[i-1], that.History[i], i-1); err != nil {
			return fmt.Errorf("%w: move %d: %w", apperror.ErrCorruptedState, i, err)
		}
	}

	if that.MoveIndex < 0 || that.MoveIndex >= len(that.History) {
		return fmt.Errorf("%w: move index %d out of range", apperror.ErrCorruptedState, that.MoveIndex)
	}

	if that.Scores[0] < 0 || that.Scores[1] < 0 {
		return fmt.Errorf("%w: negative score", apperror.ErrCorruptedState)
	}

	return nil
}

func validateStep(prev, next Board, prevIndex int) error {
	for _, cell := range next {
		if !isKnownCell(cell) {
			return fmt.Errorf("unknown mark %q", cell)
		}
	}

	if !Evaluate(prev).IsOngoing() {
		return errors.New("board follows a finished round")
	}

	cell, ok := next.PlacedCell(prev)
	if !ok {
		return errors.New("board must add exactly one mark")
	}

	if want := MarkForMove(prevIndex); next[cell] != want {
		return fmt.Errorf("cell %d holds %s, expected %s", cell, next[cell], want)
	}

	return nil
}
