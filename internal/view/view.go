// Package view turns a session into what the game screen displays.
package view

import (
	"fmt"
	"slices"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

const (
	statusWin      = "%s a gagné"
	statusDraw     = "Dommage personne a gagné !"
	statusNextTurn = "Prochain tour : %s"

	validationMessage = "Veuillez entrer le nom des deux joueurs."

	sortDescending = "Tri décroissant"
	sortAscending  = "Tri croissant"

	gameStartDescription = "Go to game start"
	moveDescription      = "Go to move #%d %s"
	currentMoveLabel     = "Vous êtes au coup #%d"
)

// Move is one entry of the move list.
type Move struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	IsLatest    bool   `json:"is_latest"`
	IsDisplayed bool   `json:"is_displayed"`
}

// State is everything the presentation layer renders for a session.
type State struct {
	SessionID         string         `json:"session_id"`
	Phase             entity.Phase   `json:"phase"`
	ValidationFailed  bool           `json:"validation_failed"`
	ValidationMessage string         `json:"validation_message,omitempty"`
	Players           entity.Players `json:"players"`
	Scores            entity.Scores  `json:"scores"`
	Score             string         `json:"score"`
	Board             entity.Board   `json:"board"`
	MoveIndex         int            `json:"move_index"`
	NextMark          entity.Cell    `json:"next_mark,omitempty"`
	CurrentPlayer     string         `json:"current_player,omitempty"`
	Result            entity.Result  `json:"result"`
	WinningLine       []int          `json:"winning_line,omitempty"`
	Status            string         `json:"status"`
	CanRestart        bool           `json:"can_restart"`
	Ascending         bool           `json:"ascending"`
	SortLabel         string         `json:"sort_label"`
	Moves             []Move         `json:"moves"`
}

func Render(session *entity.Session) State {
	match := session.Match
	players := match.Players()
	scores := match.Scores()
	result := match.Result()

	state := State{
		SessionID:        session.ID,
		Phase:            match.Phase(),
		ValidationFailed: match.ValidationFailed(),
		Players:          players,
		Scores:           scores,
		Score:            fmt.Sprintf("%s - %d | %s - %d", players[0], scores[0], players[1], scores[1]),
		Board:            match.CurrentBoard(),
		MoveIndex:        match.MoveIndex(),
		Result:           result,
		WinningLine:      result.Line,
		Status:           Status(match),
		CanRestart:       result.IsTerminal(),
		Ascending:        session.Ascending,
		SortLabel:        sortLabel(session.Ascending),
		Moves:            moves(match, session.Ascending),
	}

	if state.ValidationFailed {
		state.ValidationMessage = validationMessage
	}

	if result.IsOngoing() {
		state.NextMark = match.NextMark()
		state.CurrentPlayer = match.NextPlayer()
	}

	return state
}

// Status is computed from the displayed board and the move parity only.
func Status(match *entity.Match) string {
	result := match.Result()

	switch {
	case result.IsWin():
		return fmt.Sprintf(statusWin, result.Winner)
	case result.IsDraw():
		return statusDraw
	default:
		return fmt.Sprintf(statusNextTurn, match.NextMark())
	}
}

// Location formats a cell index as a 1-based "(row, col)".
func Location(cell int) string {
	return fmt.Sprintf("(%d, %d)", cell/3+1, cell%3+1)
}

func moves(match *entity.Match, ascending bool) []Move {
	history := match.History()
	list := make([]Move, 0, len(history))

	for i := range history {
		move := Move{
			Number:      i,
			Description: gameStartDescription,
			IsLatest:    i == len(history)-1,
			IsDisplayed: i == match.MoveIndex(),
		}

		if i > 0 {
			if cell, ok := history[i].PlacedCell(history[i-1]); ok {
				move.Location = Location(cell)
			}
			move.Description = fmt.Sprintf(moveDescription, i, move.Location)
		}

		if move.IsLatest {
			move.Description = fmt.Sprintf(currentMoveLabel, i)
		}

		list = append(list, move)
	}

	if !ascending {
		slices.Reverse(list)
	}

	return list
}

func sortLabel(ascending bool) string {
	if ascending {
		return sortDescending
	}
	return sortAscending
}
