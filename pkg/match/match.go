package match

import (
	"fmt"
	"time"
)

// Mark is a single cell value on the board. The zero cell is MarkEmpty.
type Mark byte

const (
	MarkEmpty Mark = '-'
	MarkX     Mark = 'X'
	MarkO     Mark = 'O'
)

func (m Mark) String() string {
	return string(m)
}

// ParseMark parses a board cell value from its wire form.
func ParseMark(s string) (Mark, error) {
	switch s {
	case "X":
		return MarkX, nil
	case "O":
		return MarkO, nil
	case "-":
		return MarkEmpty, nil
	default:
		return MarkEmpty, fmt.Errorf("unknown mark: %q", s)
	}
}

// Other returns the opposing mark.
func (m Mark) Other() Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

func (m Mark) MarshalJSON() ([]byte, error) {
	return []byte(`"` + string(m) + `"`), nil
}

func (m *Mark) UnmarshalJSON(b []byte) error {
	if len(b) != 3 || b[0] != '"' || b[2] != '"' {
		return fmt.Errorf("invalid mark: %s", string(b))
	}
	parsed, err := ParseMark(string(b[1:2]))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Status is the lifecycle state of a match.
// Valid transitions: waiting -> in_progress -> {finished, canceled}.
// A restart reuses the same id and goes straight back to in_progress.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further in-place mutation is expected
// except via an explicit restart.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCanceled
}

// BoardSize is the fixed number of cells on a board.
const BoardSize = 9

// Board is the 9-cell grid. The wire form is a 9-character string,
// e.g. "X--O-----".
type Board [BoardSize]Mark

// EmptyBoard returns a board with all cells empty.
func EmptyBoard() Board {
	var b Board
	for i := range b {
		b[i] = MarkEmpty
	}
	return b
}

// ParseBoard parses a board from its 9-character wire form.
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != BoardSize {
		return b, fmt.Errorf("board must be %d cells, got %d", BoardSize, len(s))
	}
	for i := 0; i < BoardSize; i++ {
		switch Mark(s[i]) {
		case MarkEmpty, MarkX, MarkO:
			b[i] = Mark(s[i])
		default:
			return b, fmt.Errorf("invalid cell %q at position %d", s[i], i)
		}
	}
	return b, nil
}

func (b Board) String() string {
	cells := make([]byte, BoardSize)
	for i, m := range b {
		cells[i] = byte(m)
	}
	return string(cells)
}

func (b Board) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

func (b *Board) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid board: %s", string(data))
	}
	parsed, err := ParseBoard(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ValidPosition reports whether pos addresses a cell on the board.
func ValidPosition(pos int) bool {
	return pos >= 0 && pos < BoardSize
}

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Winner returns the mark holding a completed line, if any.
func (b Board) Winner() (Mark, bool) {
	for _, line := range winningLines {
		m := b[line[0]]
		if m != MarkEmpty && m == b[line[1]] && m == b[line[2]] {
			return m, true
		}
	}
	return MarkEmpty, false
}

// Full reports whether no empty cell remains.
func (b Board) Full() bool {
	for _, m := range b {
		if m == MarkEmpty {
			return false
		}
	}
	return true
}

// Match is the persisted record representing one game session between
// two participants. The repository is the sole writer of authoritative
// state; clients hold read-mostly copies replaced wholesale on every
// observed change.
type Match struct {
	ID          string     `json:"id"`
	PlayerX     string     `json:"player_x"`
	PlayerO     string     `json:"player_o,omitempty"`
	Board       Board      `json:"board"`
	CurrentTurn Mark       `json:"current_turn"`
	Status      Status     `json:"status"`
	TurnNumber  int        `json:"turn_number"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// MarkFor returns the mark a participant plays as. Callers treat this
// as a hint for move submission; the repository is the authority on
// whether the move is legal.
func (m *Match) MarkFor(playerID string) Mark {
	if playerID == m.PlayerX {
		return MarkX
	}
	return MarkO
}

// Clone returns a deep copy of the match.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	clone := *m
	if m.FinishedAt != nil {
		finishedAt := *m.FinishedAt
		clone.FinishedAt = &finishedAt
	}
	return &clone
}
