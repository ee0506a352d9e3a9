// Package terminalrenderer 在终端中预览截断结果：字符格测宽，lipgloss 画边框。
package terminalrenderer

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ByLCY/textfit/layout"
	"github.com/ByLCY/textfit/renderer"
)

// DefaultCellWidth 是一个字符格对应的宽度（mm）。
const DefaultCellWidth = 2.0

// Renderer 把每个字符格视为 CellWidth 毫米，与字体和字号无关；CJK 等宽字符占两格。
type Renderer struct {
	CellWidth float64
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

// New 创建终端渲染器，cellWidth <= 0 时使用 DefaultCellWidth。
func New(cellWidth float64) *Renderer {
	if cellWidth <= 0 {
		cellWidth = DefaultCellWidth
	}
	return &Renderer{CellWidth: cellWidth}
}

// TextWidth 实现 layout.Typesetter。
func (r *Renderer) TextWidth(content string, _ layout.FontResource, _ float64) (float64, error) {
	return float64(runewidth.StringWidth(content)) * r.cell(), nil
}

func (r *Renderer) cell() float64 {
	if r.CellWidth <= 0 {
		return DefaultCellWidth
	}
	return r.CellWidth
}

// Render 把所有盒子纵向拼接为带边框的文本块。
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	blocks := make([]string, 0, len(result.Boxes))
	for _, box := range result.Boxes {
		blocks = append(blocks, r.RenderBox(box))
	}
	return []byte(lipgloss.JoinVertical(lipgloss.Left, blocks...) + "\n"), nil
}

// RenderBox 渲染单个盒子：标题行给出 ID 与截断状态，下面是逐行内容。
// 未展开时行数补足到盒子高度对应的行数。
func (r *Renderer) RenderBox(box layout.ClampBox) string {
	cols := r.cols(box.Width)
	rows := make([]string, 0, len(box.Lines))
	for _, ln := range box.Lines {
		rows = append(rows, runewidth.FillRight(r.line(ln), cols))
	}
	if !box.Expanded && box.LineHeight > 0 {
		want := int(math.Floor(box.Height/box.LineHeight + 1e-9))
		for len(rows) < want {
			rows = append(rows, strings.Repeat(" ", cols))
		}
	}
	if len(rows) == 0 {
		rows = append(rows, strings.Repeat(" ", cols))
	}

	border := layout.Color{R: 128, G: 128, B: 128}
	if box.Border != nil {
		border = *box.Border
	}
	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(hexColor(border)).
		Foreground(hexColor(box.Color))
	title := lipgloss.NewStyle().Bold(true).Render(box.ID) + " " + status(box)
	return lipgloss.JoinVertical(lipgloss.Left, title, frame.Render(strings.Join(rows, "\n")))
}

func (r *Renderer) cols(width float64) int {
	return int(math.Round(width / r.cell()))
}

// line 按各项的 X 坐标把一行排成字符串。
func (r *Renderer) line(ln layout.FlowLine) string {
	var b strings.Builder
	col := 0
	for _, it := range ln.Items {
		if target := r.cols(it.X); target > col {
			b.WriteString(strings.Repeat(" ", target-col))
			col = target
		}
		text := it.Text
		if it.Kind == "box" {
			text = element(it.Text, r.cols(it.Width))
		}
		b.WriteString(text)
		col += runewidth.StringWidth(text)
	}
	return b.String()
}

// element 把行内元素画成 [label]，宽度固定为 w 格。
func element(label string, w int) string {
	if w < 2 {
		return strings.Repeat("#", max(w, 0))
	}
	inner := runewidth.Truncate(label, w-2, "")
	return "[" + runewidth.FillRight(inner, w-2) + "]"
}

func status(box layout.ClampBox) string {
	switch {
	case box.Expanded:
		return fmt.Sprintf("(expanded, overflow %.1fmm)", box.Overflow)
	case box.Fit.Collapsed:
		return "(collapsed)"
	case box.Fit.Truncated:
		return fmt.Sprintf("(truncated, %d probes)", box.Fit.Probes)
	default:
		return "(fits)"
	}
}

func hexColor(c layout.Color) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B))
}
