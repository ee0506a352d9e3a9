package layout

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/textfit/fit"
)

// monoTypesetter 是等宽测试后端：每个字符宽 advance mm，与字体无关。
type monoTypesetter struct {
	advance float64
	calls   int
}

func (m *monoTypesetter) TextWidth(content string, font FontResource, fontSize float64) (float64, error) {
	m.calls++
	return float64(utf8.RuneCountInString(content)) * m.advance, nil
}

func newFlow(width float64) *Flow {
	return &Flow{
		Typesetter: &monoTypesetter{advance: 2},
		Style:      TextStyle{FontSize: 4, LineHeight: 5},
		Width:      width,
	}
}

func textPieces(texts ...string) []fit.Piece {
	out := make([]fit.Piece, 0, len(texts))
	for i, s := range texts {
		out = append(out, fit.Piece{Index: i, Kind: fit.KindText, Text: s, Node: fit.Text(s)})
	}
	return out
}

func lineTexts(ln FlowLine) []string {
	var out []string
	for _, it := range ln.Items {
		out = append(out, it.Text)
	}
	return out
}

func TestFlowGluesWordsAcrossPieces(t *testing.T) {
	lines, err := newFlow(14).Lines(textPieces("foo", "bar baz"))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, []string{"foo", "bar"}, lineTexts(lines[0]))
	assert.Equal(t, 0.0, lines[0].Items[0].X)
	assert.Equal(t, 6.0, lines[0].Items[1].X)
	assert.Equal(t, 1, lines[0].Items[1].Index)
	assert.Equal(t, 12.0, lines[0].Width)

	assert.Equal(t, []string{"baz"}, lineTexts(lines[1]))
	assert.Equal(t, 5.0, lines[1].Y)
	assert.Equal(t, 10.0, LinesHeight(lines))
}

func TestFlowCollapsesWhitespace(t *testing.T) {
	lines, err := newFlow(100).Lines(textPieces("  a   b  "))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"a", "b"}, lineTexts(lines[0]))
	assert.Equal(t, 4.0, lines[0].Items[1].X)
	assert.Equal(t, 6.0, lines[0].Width)
}

func TestFlowAtomicBoxRaisesLine(t *testing.T) {
	btn := fit.Atomic("Button", ElementBox{Label: "go", Width: 6, Height: 9})
	pieces := append(textPieces("hi "), fit.Piece{Index: 1, Kind: fit.KindAtomic, Node: btn})
	lines, err := newFlow(100).Lines(pieces)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Len(t, lines[0].Items, 2)

	box := lines[0].Items[1]
	assert.Equal(t, "box", box.Kind)
	assert.Equal(t, "go", box.Text)
	assert.Equal(t, 6.0, box.X)
	assert.Equal(t, 9.0, lines[0].Height)
}

func TestFlowBreaksAroundAtomicBoxes(t *testing.T) {
	btn := fit.Atomic("Button", ElementBox{Width: 6, Height: 4})
	pieces := append(textPieces("abcd"), fit.Piece{Index: 1, Kind: fit.KindAtomic, Node: btn})
	lines, err := newFlow(10).Lines(pieces)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "box", lines[1].Items[0].Kind)
	assert.Equal(t, 0.0, lines[1].Items[0].X)
}

func TestFlowSplitsOverlongWord(t *testing.T) {
	lines, err := newFlow(10).Lines(textPieces("abcdefghijkl"))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"abcde"}, lineTexts(lines[0]))
	assert.Equal(t, []string{"fghij"}, lineTexts(lines[1]))
	assert.Equal(t, []string{"kl"}, lineTexts(lines[2]))
}

func TestFlowSplitKeepsGraphemes(t *testing.T) {
	// e + 组合重音是一个字素簇、两个码点，宽 4mm
	const e = "e\u0301"
	lines, err := newFlow(8).Lines(textPieces(e + e + e))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, []string{e + e}, lineTexts(lines[0]))
	assert.Equal(t, []string{e}, lineTexts(lines[1]))
}

func TestFlowUnlimitedWidth(t *testing.T) {
	lines, err := newFlow(0).Lines(textPieces("one two three four five six"))
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestFlowMarkerItem(t *testing.T) {
	content := []fit.Node{fit.Text("alpha beta gamma")}
	c := fit.Candidate{Boundary: fit.Boundary{Node: 0, Offset: 6}, EllipsisAfter: 0, Marker: "… "}
	lines, err := newFlow(100).Lines(fit.Project(content, c))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	items := lines[0].Items
	last := items[len(items)-1]
	assert.True(t, last.Marker)
	assert.Equal(t, -1, last.Index)
	assert.Equal(t, "…", last.Text)
	assert.Equal(t, []string{"alpha", "…"}, lineTexts(lines[0]))
}

func TestFlowMeasure(t *testing.T) {
	f := newFlow(14)
	content := []fit.Node{fit.Text("foo bar baz")}
	h, err := f.Measure(context.Background(), content, fit.Full(content))
	require.NoError(t, err)
	assert.Equal(t, 10.0, h)

	narrow := f.At(100)
	assert.Equal(t, 100.0, narrow.Width)
	assert.Equal(t, 14.0, f.Width)
	h, err = narrow.Measure(context.Background(), content, fit.Full(content))
	require.NoError(t, err)
	assert.Equal(t, 5.0, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Measure(ctx, content, fit.Full(content))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFlowRequiresTypesetter(t *testing.T) {
	_, err := (&Flow{Width: 10}).Lines(textPieces("x"))
	require.Error(t, err)
}

func TestFlowFitsLorem(t *testing.T) {
	// 40mm 宽、每字 2mm，行高 5mm，盒子 10mm 高：至多两行
	content := []fit.Node{fit.Text("Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore.")}
	f := newFlow(40)
	res, err := fit.Fit(context.Background(), content, fit.Box{Width: 40, Height: 10}, f)
	require.NoError(t, err)
	require.True(t, res.Truncated)

	lines, err := f.Lines(fit.Project(content, res.Candidate))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	last := lines[1].Items[len(lines[1].Items)-1]
	assert.True(t, last.Marker)
}
