package fit

import "strings"

// Piece is one visible fragment of a candidate, in render order.
type Piece struct {
	Index  int    // index into the content, -1 for the marker
	Kind   Kind
	Text   string // visible text of a text run or the marker
	Node   Node
	Marker bool
}

// Project lists what a candidate renders: body nodes up to the boundary (the
// straddling text run cut at its offset), the marker after its append point,
// then the slots the candidate shows.
func Project(content []Node, c Candidate) []Piece {
	out := make([]Piece, 0, len(content)+2)
	b := c.Boundary
	for i, n := range content {
		if n.IsSlot() {
			continue
		}
		if i > b.Node {
			break
		}
		if i == b.Node {
			if n.Kind != KindText || b.Offset <= 0 {
				break
			}
			out = append(out, Piece{Index: i, Kind: KindText, Text: n.Text[:min(b.Offset, len(n.Text))], Node: n})
		} else {
			out = append(out, Piece{Index: i, Kind: n.Kind, Text: n.Text, Node: n})
		}
		if i == c.EllipsisAfter && c.Ellipsis() {
			out = append(out, Piece{Index: -1, Kind: KindText, Text: c.Marker, Marker: true})
		}
	}
	for i, n := range content {
		if !n.IsSlot() {
			continue
		}
		if (n.Slot == SlotExpand && c.Expand) || (n.Slot == SlotCollapse && c.Collapse) {
			out = append(out, Piece{Index: i, Kind: KindAtomic, Node: n})
		}
	}
	return out
}

// Visibility is the host-facing state of one content node.
type Visibility struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text,omitempty"`   // visible part of a text run
	Suffix  string `json:"suffix,omitempty"` // marker rendered right after the node
}

// Apply maps a candidate onto the content, one entry per node. Text runs past
// the boundary are cleared rather than dropped so the node count is stable.
func Apply(content []Node, c Candidate) []Visibility {
	out := make([]Visibility, len(content))
	for _, p := range Project(content, c) {
		if p.Marker {
			continue
		}
		out[p.Index] = Visibility{Visible: true, Text: p.Text}
	}
	if c.Ellipsis() && c.EllipsisAfter < len(out) {
		out[c.EllipsisAfter].Suffix = c.Marker
	}
	return out
}

// VisibleText concatenates the text a candidate renders, marker included.
func VisibleText(content []Node, c Candidate) string {
	var b strings.Builder
	for _, p := range Project(content, c) {
		if p.Kind == KindText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
