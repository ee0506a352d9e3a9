package fit

import "strings"

// Kind distinguishes text runs from atomic inline elements.
type Kind int

const (
	KindText   Kind = iota // a run of characters that may be cut at a legal boundary
	KindAtomic             // an element that is shown whole or not at all
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAtomic:
		return "atomic"
	default:
		return "unknown"
	}
}

// Slot marks atomic nodes that are toggled by the clamp state rather than
// laid out with the body.
type Slot int

const (
	SlotNone Slot = iota
	SlotExpand
	SlotCollapse
)

func (s Slot) String() string {
	switch s {
	case SlotExpand:
		return "expand"
	case SlotCollapse:
		return "collapse"
	default:
		return ""
	}
}

// ParseSlot maps the attribute value used in markup to a Slot.
func ParseSlot(v string) (Slot, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "none":
		return SlotNone, true
	case "expand":
		return SlotExpand, true
	case "collapse":
		return SlotCollapse, true
	default:
		return SlotNone, false
	}
}

// Node is one unit of inline content in document order.
type Node struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text,omitempty"`
	Name   string `json:"name,omitempty"`
	Slot   Slot   `json:"slot,omitempty"`
	Handle any    `json:"-"`
}

// Text builds a text run.
func Text(s string) Node { return Node{Kind: KindText, Text: s} }

// Atomic builds an atomic element. handle is passed through untouched to the
// measurer, which typically uses it to find the element's size.
func Atomic(name string, handle any) Node {
	return Node{Kind: KindAtomic, Name: name, Handle: handle}
}

// SlotElement builds an atomic element bound to the expand or collapse slot.
func SlotElement(slot Slot, name string, handle any) Node {
	return Node{Kind: KindAtomic, Name: name, Slot: slot, Handle: handle}
}

// IsSlot reports whether the node is toggled by the clamp state.
func (n Node) IsSlot() bool { return n.Kind == KindAtomic && n.Slot != SlotNone }

// blank reports whether a text run renders nothing after whitespace trimming.
func (n Node) blank() bool {
	return n.Kind == KindText && strings.TrimSpace(n.Text) == ""
}

// Box is the fixed target extent of one fit pass.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (b Box) Valid() bool { return b.Width > 0 && b.Height > 0 }

// Boundary is the truncation point: Node is the first body node that is not
// fully included, Offset the byte offset inside it when it is a text run.
// Boundary{Node: len(content)} includes everything.
type Boundary struct {
	Node   int `json:"node"`
	Offset int `json:"offset"`
}

// Before orders boundaries in document order.
func (b Boundary) Before(o Boundary) bool {
	if b.Node != o.Node {
		return b.Node < o.Node
	}
	return b.Offset < o.Offset
}

// Candidate is one renderable state of the content: what is included, where
// the ellipsis marker goes and which slots are shown.
type Candidate struct {
	Boundary      Boundary `json:"boundary"`
	EllipsisAfter int      `json:"ellipsisAfter"` // node index the marker follows, -1 for none
	Marker        string   `json:"marker,omitempty"`
	Expand        bool     `json:"expand,omitempty"`
	Collapse      bool     `json:"collapse,omitempty"`
}

// Ellipsis reports whether the marker is rendered.
func (c Candidate) Ellipsis() bool { return c.EllipsisAfter >= 0 && c.Marker != "" }

// Full returns the candidate that shows every body node with no marker and
// no slots.
func Full(content []Node) Candidate {
	return Candidate{Boundary: Boundary{Node: len(content)}, EllipsisAfter: -1}
}

// Expanded returns the candidate of the expanded state: every body node plus
// the collapse slot.
func Expanded(content []Node) Candidate {
	c := Full(content)
	c.Collapse = true
	return c
}

// Result is the outcome of one fit pass.
type Result struct {
	Candidate
	Truncated bool `json:"truncated"`
	Collapsed bool `json:"collapsed,omitempty"` // nothing fits, not even the marker
	Probes    int  `json:"probes"`
}

// bodyIndexes returns the indexes of non-slot nodes.
func bodyIndexes(content []Node) []int {
	out := make([]int, 0, len(content))
	for i, n := range content {
		if !n.IsSlot() {
			out = append(out, i)
		}
	}
	return out
}

func hasSlot(content []Node, slot Slot) bool {
	for _, n := range content {
		if n.Kind == KindAtomic && n.Slot == slot {
			return true
		}
	}
	return false
}

// ellipsisPoint picks the node the marker is appended to for boundary b.
// Blank text runs are skipped; -1 means nothing visible precedes b.
func ellipsisPoint(content []Node, b Boundary) int {
	if b.Node < len(content) && b.Offset > 0 {
		n := content[b.Node]
		if n.Kind == KindText && strings.TrimSpace(n.Text[:b.Offset]) != "" {
			return b.Node
		}
	}
	for i := min(b.Node, len(content)) - 1; i >= 0; i-- {
		n := content[i]
		if n.IsSlot() || n.blank() {
			continue
		}
		return i
	}
	return -1
}
