package layout

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/ByLCY/textfit/fit"
)

// 该文件实现行内流式排版：把 fit.Project 给出的可见片段排成行，并据此实现 fit.Measurer。

// TextStyle 描述流式排版所需的字体参数，单位与 Typesetter 保持一致。
type TextStyle struct {
	Font       FontResource
	FontSize   float64
	LineHeight float64
}

// Sizer 由原子元素的 Handle 实现，报告其占位尺寸。
type Sizer interface {
	Size() (width, height float64)
}

// ElementBox 是固定宽高的行内块（按钮、图标、slot 元素等）。
type ElementBox struct {
	Label  string  `json:"label,omitempty"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b ElementBox) Size() (float64, float64) { return b.Width, b.Height }

// Flow 在给定宽度内排版片段。零值不可用：Typesetter 必须非空。
type Flow struct {
	Typesetter Typesetter
	Style      TextStyle
	Width      float64
}

var _ fit.Measurer = (*Flow)(nil)

// At 返回同样式、不同宽度的 Flow，供盒子尺寸变化时重新测量。
func (f *Flow) At(width float64) *Flow {
	cp := *f
	cp.Width = width
	return &cp
}

// Measure 实现 fit.Measurer：候选内容排版后的总高度。
func (f *Flow) Measure(ctx context.Context, content []fit.Node, c fit.Candidate) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	lines, err := f.Lines(fit.Project(content, c))
	if err != nil {
		return 0, err
	}
	return LinesHeight(lines), nil
}

// LinesHeight 返回各行高度之和。
func LinesHeight(lines []FlowLine) float64 {
	total := 0.0
	for _, ln := range lines {
		total += ln.Height
	}
	return total
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokBox
)

type token struct {
	kind   tokenKind
	text   string
	piece  int
	width  float64
	height float64
}

// chunk 是不可在其内部换行的一组 token：跨片段相邻的单词，或单个原子元素。
type chunk struct {
	tokens      []token
	spaceBefore bool
	width       float64
	height      float64
	isBox       bool
}

// Lines 使用贪心算法把片段排成行。空白按行内 HTML 的方式折叠：连续空白只保留一个
// 断行机会，行首空白丢弃。超过行宽的单词按字素簇拆分。
func (f *Flow) Lines(pieces []fit.Piece) ([]FlowLine, error) {
	if f.Typesetter == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}
	limit := f.Width
	if limit <= 0 {
		limit = math.MaxFloat64
	}

	chunks, err := f.chunks(pieces)
	if err != nil {
		return nil, err
	}
	spaceWidth, err := f.width(" ")
	if err != nil {
		return nil, err
	}

	b := &lineBuilder{pieces: pieces, lineHeight: f.Style.LineHeight}
	for _, ch := range chunks {
		gap := 0.0
		if ch.spaceBefore && len(b.items) > 0 {
			gap = spaceWidth
		}
		if len(b.items) > 0 && b.x+gap+ch.width > limit {
			b.emit()
			gap = 0
		}
		if ch.isBox || ch.width <= limit {
			b.place(ch.tokens, gap)
			continue
		}
		if err := f.splitChunk(b, ch, gap, limit); err != nil {
			return nil, err
		}
	}
	b.emit()
	return b.lines, nil
}

func (f *Flow) width(s string) (float64, error) {
	return f.Typesetter.TextWidth(s, f.Style.Font, f.Style.FontSize)
}

func (f *Flow) chunks(pieces []fit.Piece) ([]chunk, error) {
	var out []chunk
	pendingSpace := false
	var cur *chunk
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for i, p := range pieces {
		if p.Kind == fit.KindAtomic {
			flush()
			w, h := atomicSize(p.Node)
			out = append(out, chunk{
				tokens:      []token{{kind: tokBox, text: p.Node.Name, piece: i, width: w, height: h}},
				spaceBefore: pendingSpace,
				width:       w,
				height:      h,
				isBox:       true,
			})
			pendingSpace = false
			continue
		}
		for _, word := range splitSpaces(p.Text) {
			if word == "" {
				flush()
				pendingSpace = true
				continue
			}
			w, err := f.width(word)
			if err != nil {
				return nil, err
			}
			if cur == nil {
				cur = &chunk{spaceBefore: pendingSpace}
				pendingSpace = false
			}
			cur.tokens = append(cur.tokens, token{kind: tokWord, text: word, piece: i, width: w})
			cur.width += w
		}
	}
	flush()
	return out, nil
}

// splitSpaces 把文本拆成单词与空白，空白统一返回空串（沿用 tokenizeContent 的状态切换写法）。
func splitSpaces(s string) []string {
	var out []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		if lastWasSpace {
			out = append(out, "")
		} else {
			out = append(out, builder.String())
		}
		builder.Reset()
	}
	for _, r := range s {
		if r == '\r' {
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return out
}

func atomicSize(n fit.Node) (float64, float64) {
	if s, ok := n.Handle.(Sizer); ok {
		w, h := s.Size()
		return math.Max(w, 0), math.Max(h, 0)
	}
	return 0, 0
}

// splitChunk 把超宽单词按字素簇切开放入多行（对应 splitTokenByWidth）。
func (f *Flow) splitChunk(b *lineBuilder, ch chunk, gap, limit float64) error {
	for _, tok := range ch.tokens {
		gr := uniseg.NewGraphemes(tok.text)
		var part strings.Builder
		partWidth := 0.0
		for gr.Next() {
			cluster := gr.Str()
			cw, err := f.width(cluster)
			if err != nil {
				return err
			}
			if b.x+gap+partWidth+cw > limit && (len(b.items) > 0 || part.Len() > 0) {
				if part.Len() > 0 {
					b.place([]token{{kind: tokWord, text: part.String(), piece: tok.piece, width: partWidth}}, gap)
					part.Reset()
					partWidth = 0
				}
				b.emit()
				gap = 0
			}
			part.WriteString(cluster)
			partWidth += cw
		}
		if part.Len() > 0 {
			b.place([]token{{kind: tokWord, text: part.String(), piece: tok.piece, width: partWidth}}, gap)
			gap = 0
		}
	}
	return nil
}

type lineBuilder struct {
	pieces     []fit.Piece
	lineHeight float64
	lines      []FlowLine
	items      []FlowItem
	x          float64
	height     float64
}

func (b *lineBuilder) place(tokens []token, gap float64) {
	b.x += gap
	for _, t := range tokens {
		p := b.pieces[t.piece]
		item := FlowItem{
			Text:   t.text,
			X:      b.x,
			Width:  t.width,
			Index:  p.Index,
			Marker: p.Marker,
		}
		if t.kind == tokBox {
			item.Kind = "box"
			item.Height = t.height
			item.Slot = p.Node.Slot.String()
			if eb, ok := p.Node.Handle.(ElementBox); ok && eb.Label != "" {
				item.Text = eb.Label
			}
			b.height = math.Max(b.height, t.height)
		} else {
			item.Kind = "text"
		}
		b.items = append(b.items, item)
		b.x += t.width
	}
}

func (b *lineBuilder) emit() {
	if len(b.items) == 0 {
		return
	}
	y := 0.0
	if n := len(b.lines); n > 0 {
		y = b.lines[n-1].Y + b.lines[n-1].Height
	}
	b.lines = append(b.lines, FlowLine{
		Items:  b.items,
		Y:      y,
		Width:  b.x,
		Height: math.Max(b.lineHeight, b.height),
	})
	b.items = nil
	b.x = 0
	b.height = 0
}
