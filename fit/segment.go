package fit

import "github.com/rivo/uniseg"

// Granularity selects the legal cut points inside a text run.
type Granularity int

const (
	// Grapheme cuts between user-perceived characters.
	Grapheme Granularity = iota
	// Word cuts only between word segments (UAX #29).
	Word
)

func (g Granularity) String() string {
	if g == Word {
		return "word"
	}
	return "grapheme"
}

// ParseGranularity accepts "grapheme"/"char" and "word".
func ParseGranularity(v string) (Granularity, bool) {
	switch v {
	case "", "grapheme", "char", "character":
		return Grapheme, true
	case "word":
		return Word, true
	default:
		return Grapheme, false
	}
}

// breakOffsets returns the byte offsets strictly inside s at which the run
// may be cut, in ascending order.
func breakOffsets(s string, g Granularity) []int {
	if len(s) == 0 {
		return nil
	}
	var out []int
	switch g {
	case Word:
		state := -1
		pos := 0
		rest := s
		for len(rest) > 0 {
			var word string
			word, rest, state = uniseg.FirstWordInString(rest, state)
			pos += len(word)
			if pos < len(s) {
				out = append(out, pos)
			}
		}
	default:
		gr := uniseg.NewGraphemes(s)
		for gr.Next() {
			_, to := gr.Positions()
			if to < len(s) {
				out = append(out, to)
			}
		}
	}
	return out
}
