package canvasrenderer

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/textfit/dsl"
	"github.com/ByLCY/textfit/fit"
	"github.com/ByLCY/textfit/layout"
)

var body = layout.FontResource{Name: "Body", Src: "builtin:latin-modern"}

func TestTextWidthGrowsWithContent(t *testing.T) {
	r := NewRenderer("")
	fontSizeMM := 12 * layout.PtToMm

	short, err := r.TextWidth("hello", body, fontSizeMM)
	require.NoError(t, err)
	long, err := r.TextWidth("hello world", body, fontSizeMM)
	require.NoError(t, err)
	if short <= 0 || long <= short {
		t.Fatalf("宽度应随内容增长: short=%g long=%g", short, long)
	}

	empty, err := r.TextWidth("", body, fontSizeMM)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty)
}

// TestTextWidthScalesWithSize 验证宽度与字号成正比（mm 入参，内部换算为 pt）。
func TestTextWidthScalesWithSize(t *testing.T) {
	r := NewRenderer("")
	w1, err := r.TextWidth("Lorem ipsum", body, 4)
	require.NoError(t, err)
	w2, err := r.TextWidth("Lorem ipsum", body, 8)
	require.NoError(t, err)
	if diff := math.Abs(w2 - 2*w1); diff > 1e-6*w2 {
		t.Fatalf("字号加倍宽度应加倍: w1=%g w2=%g", w1, w2)
	}
}

func TestInjectedAndFallbackFonts(t *testing.T) {
	r := NewRendererWithOptions(Options{Fonts: map[string]Resource{"heavy": {Bytes: lmroman10bold.TTF}}})
	heavy := layout.FontResource{Name: "Heavy", Src: "builtin:heavy"}
	wHeavy, err := r.TextWidth("MMMM", heavy, 4)
	require.NoError(t, err)
	wBody, err := r.TextWidth("MMMM", body, 4)
	require.NoError(t, err)
	assert.NotEqual(t, wBody, wHeavy)

	// 相对路径但没有资源目录：回落到内置字体
	missing := layout.FontResource{Name: "Missing", Src: "fonts/nope.ttf"}
	wMissing, err := r.TextWidth("MMMM", missing, 4)
	require.NoError(t, err)
	assert.InDelta(t, wBody, wMissing, 1e-9)
}

func TestParseFontStyle(t *testing.T) {
	assert.True(t, isBold(parseFontStyle("Bold")))
	assert.True(t, isBold(parseFontStyle("semibold italic")))
	assert.False(t, isBold(parseFontStyle("italic")))
	assert.False(t, isBold(parseFontStyle("")))
}

func TestRenderPDF(t *testing.T) {
	doc, err := dsl.ParseString(`doc R v1 {
  meta {
    title: "Teaser"
  }
  clamp teaser width 60mm height 12mm border #999 {
    size: 10pt
    "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. "
    element Badge width 10mm height 4mm label "new"
    slot expand width 12mm height 4mm label "more"
  }
}`)
	require.NoError(t, err)

	r := NewRenderer("")
	res, err := layout.Build(context.Background(), doc, nil, layout.BuildOptions{Typesetter: r})
	require.NoError(t, err)
	box := res.Boxes[0]
	require.True(t, box.Fit.Truncated)
	assert.LessOrEqual(t, layout.LinesHeight(box.Lines), box.Height)
	for _, ln := range box.Lines {
		assert.LessOrEqual(t, ln.Width, box.Width+1e-6)
	}
	assert.True(t, box.Fit.Expand)
	assert.NotEqual(t, "", fit.VisibleText(box.Content, box.Fit.Candidate))

	pdfBytes, err := r.Render(res)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdfBytes, []byte("%PDF")), "输出应为 PDF")
}

func TestRenderErrors(t *testing.T) {
	r := NewRenderer("")
	_, err := r.Render(nil)
	require.Error(t, err)
	_, err = r.Render(&layout.Result{})
	require.Error(t, err)
}
