package entity

const BoardSize = 9

type Cell string

const (
	EmptyCell Cell = ""
	PlayerX   Cell = "X"
	PlayerO   Cell = "O"
)

type Outcome string

const (
	OutcomeOngoing Outcome = "ongoing"
	OutcomeWin     Outcome = "win"
	OutcomeDraw    Outcome = "draw"
)

// WinCombos are scanned in this order; the first complete line wins.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Board is a 3x3 grid stored row-major. It is a value type: placing a mark returns a new Board.
type Board [BoardSize]Cell

// Result is the evaluation of a board.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Winner  Cell    `json:"winner,omitempty"`
	Line    []int   `json:"line,omitempty"`
}

func (that Result) IsOngoing() bool {
	return that.Outcome == OutcomeOngoing
}

func (that Result) IsWin() bool {
	return that.Outcome == OutcomeWin
}

func (that Result) IsDraw() bool {
	return that.Outcome == OutcomeDraw
}

// IsTerminal - the round is over, either won or drawn.
func (that Result) IsTerminal() bool {
	return that.IsWin() || that.IsDraw()
}

// InLine reports whether cell is part of the winning line.
func (that Result) InLine(cell int) bool {
	for _, c := range that.Line {
		if c == cell {
			return true
		}
	}
	return false
}

// Evaluate - checks the board for a winner or a draw.
func Evaluate(board Board) Result {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return Result{
				Outcome: OutcomeWin,
				Winner:  a,
				Line:    []int{combo[0], combo[1], combo[2]},
			}
		}
	}

	// the round continues until all the squares are full
	if !board.IsFull() {
		return Result{Outcome: OutcomeOngoing}
	}

	return Result{Outcome: OutcomeDraw}
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == EmptyCell {
			return false
		}
	}
	return true
}

func (that Board) IsEmpty() bool {
	return that == Board{}
}

// With returns a copy of the board with mark placed on cell.
func (that Board) With(cell int, mark Cell) Board {
	that[cell] = mark
	return that
}

// PlacedCell returns the single cell that is empty in prev and marked in that.
// It reports false when the boards differ in any other way.
func (that Board) PlacedCell(prev Board) (int, bool) {
	placed := -1

	for i := range that {
		if that[i] == prev[i] {
			continue
		}

		if prev[i] != EmptyCell || that[i] == EmptyCell || placed != -1 {
			return -1, false
		}

		placed = i
	}

	return placed, placed != -1
}

func IsValidCell(cell int) bool {
	return cell >= 0 && cell < BoardSize
}

func isKnownCell(cell Cell) bool {
	return cell == EmptyCell || cell == PlayerX || cell == PlayerO
}

// MarkForMove - X moves from even history indexes, O from odd ones.
func MarkForMove(moveIndex int) Cell {
	if moveIndex%2 == 0 {
		return PlayerX
	}
	return PlayerO
}
