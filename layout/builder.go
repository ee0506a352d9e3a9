package layout

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ByLCY/textfit/binding"
	"github.com/ByLCY/textfit/config"
	"github.com/ByLCY/textfit/dsl"
	"github.com/ByLCY/textfit/fit"
)

const (
	blockSpacing      = 4.0 // 未指定 y 的 clamp 之间的垂直间距
	defaultMargin     = 10.0
	defaultFontSizePt = 12.0
	defaultLineFactor = 1.4
)

// ClampSpec 是解析后的 clamp 定义：几何、样式与内容，尚未截断。长度单位均为 mm。
type ClampSpec struct {
	ID       string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Style    TextStyle
	Color    Color
	Border   *Color
	Expanded bool
	Fit      fit.Options
	Content  []fit.Node
	Debug    *ClampDebug
}

// Box 返回截断的目标尺寸。
func (s ClampSpec) Box() fit.Box { return fit.Box{Width: s.Width, Height: s.Height} }

// Flow 返回按该 clamp 宽度与样式排版的 Flow。
func (s ClampSpec) Flow(ts Typesetter) *Flow {
	return &Flow{Typesetter: ts, Style: s.Style, Width: s.Width}
}

// Compose 按截断结果排版出最终盒子。expanded 为 true 时展示完整内容与 collapse slot，
// 超出盒子的高度记入 Overflow。
func (s ClampSpec) Compose(flow *Flow, res fit.Result, expanded bool) (ClampBox, error) {
	cand := res.Candidate
	if expanded {
		cand = fit.Expanded(s.Content)
		res.Candidate = cand
	}
	lines, err := flow.Lines(fit.Project(s.Content, cand))
	if err != nil {
		return ClampBox{}, fmt.Errorf("clamp %s 排版失败: %w", s.ID, err)
	}
	box := ClampBox{
		ID:         s.ID,
		X:          s.X,
		Y:          s.Y,
		Width:      s.Width,
		Height:     s.Height,
		Font:       s.Style.Font.Name,
		FontSize:   s.Style.FontSize,
		LineHeight: s.Style.LineHeight,
		Color:      s.Color,
		Border:     s.Border,
		Expanded:   expanded,
		Content:    s.Content,
		Fit:        res,
		Lines:      lines,
		Debug:      s.Debug,
	}
	if expanded {
		box.Overflow = math.Max(0, LinesHeight(lines)-s.Height)
	}
	return box, nil
}

// FitClamp 对单个 clamp 执行一次截断并排版。
func FitClamp(ctx context.Context, spec ClampSpec, ts Typesetter) (ClampBox, error) {
	flow := spec.Flow(ts)
	res, err := fit.New(spec.Fit).Fit(ctx, spec.Content, spec.Box(), flow)
	if err != nil {
		return ClampBox{}, fmt.Errorf("clamp %s 截断失败: %w", spec.ID, err)
	}
	return spec.Compose(flow, res, spec.Expanded && res.Truncated)
}

// Plan 是文档解析后的中间结果：资源、元信息与各 clamp 定义。
type Plan struct {
	Page      Page
	Margin    float64
	Clamps    []ClampSpec
	Resources ResourceSet
	Meta      DocumentMeta
}

// Lookup 按 ID 查找 clamp 定义。
func (p *Plan) Lookup(id string) (ClampSpec, bool) {
	for _, c := range p.Clamps {
		if c.ID == id {
			return c, true
		}
	}
	return ClampSpec{}, false
}

// Prepare 解析资源并把每个 clamp 段落转换为 ClampSpec，不做任何测量。
// 未写 x/y 的 clamp 自上而下依次排列。
func Prepare(doc *dsl.Document, data any, opts BuildOptions) (*Plan, error) {
	if doc == nil {
		return nil, fmt.Errorf("文档为空")
	}
	res, err := collectResources(doc)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Margin:    opts.margin(),
		Resources: res,
		Meta:      collectMeta(doc, data),
	}

	cursorY := plan.Margin
	seen := map[string]bool{}
	for _, sec := range doc.Clamps() {
		if seen[sec.ID] {
			return nil, fmt.Errorf("clamp %s 重复定义", sec.ID)
		}
		seen[sec.ID] = true

		spec, err := prepareClamp(sec, res, data, opts)
		if err != nil {
			return nil, err
		}
		spec.X += plan.Margin
		if spec.Y < 0 {
			spec.Y = cursorY
		} else {
			spec.Y += plan.Margin
		}
		cursorY = math.Max(cursorY, spec.Y+spec.Height+blockSpacing)
		plan.Page.Width = math.Max(plan.Page.Width, spec.X+spec.Width+plan.Margin)
		plan.Page.Height = math.Max(plan.Page.Height, spec.Y+spec.Height+plan.Margin)
		plan.Clamps = append(plan.Clamps, spec)
	}
	if len(plan.Clamps) == 0 {
		return nil, fmt.Errorf("文档中缺少 clamp 段落")
	}
	return plan, nil
}

// Build 根据 DSL AST 计算每个 clamp 的截断结果与行内排版。
func Build(ctx context.Context, doc *dsl.Document, data any, opts BuildOptions) (*Result, error) {
	if opts.Typesetter == nil {
		return nil, fmt.Errorf("layout: 缺少排版后端 Typesetter")
	}
	plan, err := Prepare(doc, data, opts)
	if err != nil {
		return nil, err
	}
	logger := opts.logger()

	boxes := make([]ClampBox, 0, len(plan.Clamps))
	for _, spec := range plan.Clamps {
		box, err := FitClamp(ctx, spec, opts.Typesetter)
		if err != nil {
			return nil, err
		}
		logger.Debug("clamp fitted",
			"id", box.ID,
			"truncated", box.Fit.Truncated,
			"collapsed", box.Fit.Collapsed,
			"probes", box.Fit.Probes,
			"lines", len(box.Lines))
		boxes = append(boxes, box)
	}
	return plan.Assemble(boxes), nil
}

// Assemble 把已排版的盒子汇总为 Result。展开态可能超出盒子，页面随之增高。
func (p *Plan) Assemble(boxes []ClampBox) *Result {
	out := &Result{
		Page:      p.Page,
		Boxes:     boxes,
		Resources: p.Resources,
		Meta:      p.Meta,
	}
	for _, box := range boxes {
		out.Page.Height = math.Max(out.Page.Height, box.Y+box.Height+box.Overflow+p.Margin)
	}
	return out
}

func prepareClamp(sec *dsl.ClampSection, res ResourceSet, data any, opts BuildOptions) (ClampSpec, error) {
	_, inline := parseArgs(sec.Params, false)
	if sec.Block != nil {
		for _, stmt := range sec.Block.Statements {
			if stmt.Assignment != nil {
				inline[stmt.Assignment.Key] = valueToString(stmt.Assignment.Value)
			}
		}
	}
	attrs := mergeStyleAttributes(inline["style"], inline, res.Styles)
	for k, v := range attrs {
		attrs[k] = binding.Interpolate(v, data)
	}

	widthLen := ParseRawLengthStr(attrs["width"])
	heightLen := ParseRawLengthStr(attrs["height"])
	sizeLen := ParseRawLengthStr(attrs["size"])
	if sizeLen.Value <= 0 {
		sizeLen = Length{Value: defaultFontSizePt, Unit: UnitPT}
	}
	lh, ok := ParseLineHeight(attrs["line-height"])
	if !ok {
		lh = LineHeightSpec{Kind: LineHeightFactor, Factor: defaultLineFactor}
	}

	fontName := attrs["font"]
	if fontName == "" {
		fontName = "Body"
	}
	font, err := resolveFontResource(fontName, res)
	if err != nil {
		return ClampSpec{}, fmt.Errorf("clamp %s: %w", sec.ID, err)
	}

	fa, err := config.DecodeAttributes(attrs)
	if err != nil {
		return ClampSpec{}, fmt.Errorf("clamp %s: %w", sec.ID, err)
	}

	content, err := clampContent(sec, data)
	if err != nil {
		return ClampSpec{}, err
	}

	spec := ClampSpec{
		ID:     sec.ID,
		X:      ParseRawLengthStr(attrs["x"]).ToMM(),
		Y:      -1,
		Width:  widthLen.ToMM(),
		Height: heightLen.ToMM(),
		Style: TextStyle{
			Font:       font,
			FontSize:   sizeLen.ToMM(),
			LineHeight: lh.Resolve(sizeLen, UnitMM),
		},
		Color:    resolveColor(attrs["color"], res),
		Expanded: fa.Expanded || slices.Contains(opts.Expand, sec.ID),
		Fit:      fa.Merge(opts.Fit),
		Content:  content,
	}
	if v := strings.TrimSpace(attrs["y"]); v != "" {
		spec.Y = ParseRawLengthStr(v).ToMM()
	}
	if v := strings.TrimSpace(attrs["border"]); v != "" {
		c := resolveColor(v, res)
		spec.Border = &c
	}
	if opts.Debug.RawUnits {
		spec.Debug = &ClampDebug{RawUnits: &RawUnits{
			Width:      widthLen.Raw(),
			Height:     heightLen.Raw(),
			FontSize:   sizeLen.Raw(),
			LineHeight: lh.Raw(),
		}}
	}
	return spec, nil
}

// clampContent 把 clamp 块中的文本与元素按文档顺序转换为内容节点。
func clampContent(sec *dsl.ClampSection, data any) ([]fit.Node, error) {
	var out []fit.Node
	if sec.Block == nil {
		return out, nil
	}
	for _, stmt := range sec.Block.Statements {
		switch {
		case stmt.Text != nil:
			out = append(out, textNode(string(stmt.Text.Value), data))
		case stmt.Command != nil:
			node, err := contentCommand(stmt.Command, data)
			if err != nil {
				return nil, fmt.Errorf("clamp %s: %w", sec.ID, err)
			}
			out = append(out, node)
		}
	}
	return out, nil
}

func contentCommand(cmd *dsl.Command, data any) (fit.Node, error) {
	switch cmd.Name {
	case "text":
		content := extractText(cmd.Block)
		if content == "" {
			return fit.Node{}, fmt.Errorf("text 语句缺少文本内容")
		}
		return textNode(content, data), nil
	case "element":
		name, attrs := parseArgs(cmd.Args, true)
		if name == "" {
			name = "element"
		}
		return fit.Atomic(name, elementBox(attrs, data)), nil
	case "slot":
		kind, attrs := parseArgs(cmd.Args, true)
		slot, ok := fit.ParseSlot(kind)
		if !ok || slot == fit.SlotNone {
			return fit.Node{}, fmt.Errorf("slot 类型 %q 无效，应为 expand 或 collapse", kind)
		}
		return fit.SlotElement(slot, slot.String(), elementBox(attrs, data)), nil
	default:
		return fit.Node{}, fmt.Errorf("不支持的语句 %s", cmd.Name)
	}
}

// textNode 插值后统一为 NFC，组合字符按预组合字形测宽。
func textNode(s string, data any) fit.Node {
	return fit.Text(norm.NFC.String(binding.Interpolate(s, data)))
}

func elementBox(attrs map[string]string, data any) ElementBox {
	return ElementBox{
		Label:  binding.Interpolate(attrs["label"], data),
		Width:  ParseRawLengthStr(attrs["width"]).ToMM(),
		Height: ParseRawLengthStr(attrs["height"]).ToMM(),
	}
}

func collectResources(doc *dsl.Document) (ResourceSet, error) {
	res := ResourceSet{
		Fonts:  map[string]FontResource{},
		Colors: map[string]Color{},
		Styles: map[string]Style{},
	}
	rawStyles := map[string]Style{}

	for _, section := range doc.Sections {
		if section.Resources == nil || section.Resources.Block == nil {
			continue
		}
		for _, stmt := range section.Resources.Block.Statements {
			if stmt.Command == nil {
				continue
			}
			switch stmt.Command.Name {
			case "font":
				font := parseFontResource(stmt.Command)
				if font.Name != "" {
					res.Fonts[font.Name] = font
				}
			case "color":
				name, value := parseColorResource(stmt.Command)
				if name == "" || value == "" {
					continue
				}
				c, err := parseColor(value)
				if err != nil {
					return res, fmt.Errorf("color %s: %w", name, err)
				}
				res.Colors[name] = c
			case "style":
				style := parseStyleResource(stmt.Command)
				if style.Name != "" {
					rawStyles[style.Name] = style
				}
			}
		}
	}

	if len(res.Fonts) == 0 {
		res.Fonts["Body"] = FontResource{
			Name:      "Body",
			Src:       "builtin:latin-modern",
			Family:    "Body",
			IsBuiltin: true,
		}
	}

	resolvedStyles, err := resolveStyles(rawStyles)
	if err != nil {
		return res, err
	}
	res.Styles = resolvedStyles

	return res, nil
}

func collectMeta(doc *dsl.Document, data any) DocumentMeta {
	meta := DocumentMeta{
		Creator: "textfit",
	}
	for _, section := range doc.Sections {
		if section.Meta == nil || section.Meta.Block == nil {
			continue
		}
		for _, stmt := range section.Meta.Block.Statements {
			if stmt.Assignment == nil {
				continue
			}
			key := strings.ToLower(stmt.Assignment.Key)
			switch key {
			case "title":
				meta.Title = binding.Interpolate(valueToString(stmt.Assignment.Value), data)
			case "author":
				meta.Author = binding.Interpolate(valueToString(stmt.Assignment.Value), data)
			case "subject":
				meta.Subject = binding.Interpolate(valueToString(stmt.Assignment.Value), data)
			case "creator":
				meta.Creator = binding.Interpolate(valueToString(stmt.Assignment.Value), data)
			case "keywords":
				meta.Keywords = valueToStringSlice(stmt.Assignment.Value)
				for i, kw := range meta.Keywords {
					meta.Keywords[i] = binding.Interpolate(kw, data)
				}
			}
		}
	}
	return meta
}

func parseFontResource(cmd *dsl.Command) FontResource {
	if len(cmd.Args) == 0 {
		return FontResource{}
	}
	font := FontResource{
		Name:   cmd.Args[0].Value,
		Family: cmd.Args[0].Value,
	}

	if cmd.Block == nil {
		return font
	}
	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment == nil || stmt.Assignment.Value.String == nil {
			continue
		}
		val := string(*stmt.Assignment.Value.String)
		switch stmt.Assignment.Key {
		case "src":
			font.Src = val
			font.IsBuiltin = strings.HasPrefix(val, "builtin:")
		case "style":
			font.Style = val
		case "fallback":
			font.Fallback = val
		}
	}
	return font
}

func parseStyleResource(cmd *dsl.Command) Style {
	if len(cmd.Args) == 0 {
		return Style{}
	}
	style := Style{
		Name:  cmd.Args[0].Value,
		Props: map[string]string{},
	}
	if len(cmd.Args) >= 3 && strings.EqualFold(cmd.Args[1].Value, "extends") {
		style.Extends = cmd.Args[2].Value
	}

	if cmd.Block == nil {
		return style
	}

	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment == nil {
			continue
		}
		val := valueToString(stmt.Assignment.Value)
		if val == "" {
			continue
		}
		style.Props[stmt.Assignment.Key] = val
	}
	return style
}

func resolveStyles(styles map[string]Style) (map[string]Style, error) {
	resolved := map[string]Style{}
	visiting := map[string]bool{}

	var dfs func(name string) (Style, error)
	dfs = func(name string) (Style, error) {
		if style, ok := resolved[name]; ok {
			return style, nil
		}
		style, ok := styles[name]
		if !ok {
			return Style{}, fmt.Errorf("style %s 未定义", name)
		}
		if visiting[name] {
			return Style{}, fmt.Errorf("style 继承存在循环：%s", name)
		}
		visiting[name] = true

		props := map[string]string{}
		if style.Extends != "" {
			parent, err := dfs(style.Extends)
			if err != nil {
				return Style{}, err
			}
			for k, v := range parent.Props {
				props[k] = v
			}
		}
		for k, v := range style.Props {
			props[k] = v
		}
		style.Props = props
		resolved[name] = style
		delete(visiting, name)
		return style, nil
	}

	for name := range styles {
		if _, err := dfs(name); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// parseColorResource 支持 `color Accent = #0F62FE` 与 `color Accent #0F62FE` 两种写法。
func parseColorResource(cmd *dsl.Command) (string, string) {
	if len(cmd.Args) == 0 {
		return "", ""
	}
	name := cmd.Args[0].Value
	value := ""
	if len(cmd.Args) > 1 {
		value = cmd.Args[len(cmd.Args)-1].Value
	}
	return name, value
}

func parseArgs(args []*dsl.Lexeme, allowStyle bool) (string, map[string]string) {
	result := map[string]string{}
	if len(args) == 0 {
		return "", result
	}

	cursor := 0
	var style string
	if allowStyle && args[0].Type == "Ident" {
		style = args[0].Value
		cursor = 1
	}

	for cursor < len(args)-1 {
		key := args[cursor].Value
		val := args[cursor+1].Value
		result[key] = val
		cursor += 2
	}

	return style, result
}

func mergeStyleAttributes(style string, inline map[string]string, styles map[string]Style) map[string]string {
	out := make(map[string]string)
	if style != "" {
		if s, ok := styles[style]; ok {
			for k, v := range s.Props {
				out[k] = v
			}
		}
	}
	for k, v := range inline {
		out[k] = v
	}
	return out
}

func extractText(block *dsl.Block) string {
	if block == nil {
		return ""
	}
	var builder strings.Builder
	for _, stmt := range block.Statements {
		if stmt.Text != nil {
			builder.WriteString(string(stmt.Text.Value))
		}
	}
	return builder.String()
}

func resolveFontResource(name string, res ResourceSet) (FontResource, error) {
	if font, ok := res.Fonts[name]; ok {
		return font, nil
	}
	if font, ok := res.Fonts["Body"]; ok {
		return font, nil
	}
	for _, font := range res.Fonts {
		return font, nil
	}
	return FontResource{}, fmt.Errorf("字体 %s 未定义，且没有可用的默认字体", name)
}

func resolveColor(value string, res ResourceSet) Color {
	if value == "" {
		return Color{R: 30, G: 30, B: 30}
	}
	if c, ok := res.Colors[value]; ok {
		return c
	}
	if strings.HasPrefix(value, "#") {
		if c, err := parseColor(value); err == nil {
			return c
		}
	}
	return Color{R: 30, G: 30, B: 30}
}

func parseColor(value string) (Color, error) {
	value = strings.TrimPrefix(value, "#")
	switch len(value) {
	case 3:
		r := strings.Repeat(string(value[0]), 2)
		g := strings.Repeat(string(value[1]), 2)
		b := strings.Repeat(string(value[2]), 2)
		return Color{
			R: mustHex(r),
			G: mustHex(g),
			B: mustHex(b),
		}, nil
	case 6, 8:
		return Color{
			R: mustHex(value[0:2]),
			G: mustHex(value[2:4]),
			B: mustHex(value[4:6]),
		}, nil
	default:
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
	}
}

func mustHex(s string) int {
	v, _ := strconv.ParseInt(s, 16, 64)
	return int(v)
}

func valueToString(val *dsl.Value) string {
	if val == nil {
		return ""
	}
	switch {
	case val.String != nil:
		return string(*val.String)
	case val.Number != nil:
		return *val.Number
	case val.Color != nil:
		return *val.Color
	case val.Expr != nil:
		var builder strings.Builder
		for _, part := range val.Expr.Parts {
			builder.WriteString(part.Value)
		}
		return builder.String()
	default:
		return ""
	}
}

func valueToStringSlice(val *dsl.Value) []string {
	if val == nil {
		return nil
	}
	if val.Array != nil {
		out := make([]string, 0, len(val.Array.Values))
		for _, item := range val.Array.Values {
			if s := valueToString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := valueToString(val); s != "" {
		return []string{s}
	}
	return nil
}
