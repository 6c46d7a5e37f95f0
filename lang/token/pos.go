package token

// Pos is a 1-based source line number. The spec's error format only ever
// reports "[line N]" (no column), so unlike the teacher's packed line/column
// encoding, Pos here carries the line alone.
type Pos int

// NoPos is the zero value of Pos; it means "unknown position".
const NoPos Pos = 0

// Line returns the 1-based line number, or 0 if unknown.
func (p Pos) Line() int { return int(p) }
