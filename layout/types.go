package layout

import "github.com/ByLCY/textfit/fit"

// 该文件定义布局结果与资源描述，供布局计算、渲染与调试 JSON 共用。

// Result 保存所有 clamp 盒子的布局结果与资源信息。
type Result struct {
	Page      Page         `json:"page"`
	Boxes     []ClampBox   `json:"boxes"`
	Resources ResourceSet  `json:"resources"`
	Meta      DocumentMeta `json:"meta"`
}

// Page 是渲染画布尺寸（mm），由所有盒子的外接矩形加边距得出。
type Page struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ResourceSet 记录解析出的字体、颜色与样式定义。
type ResourceSet struct {
	Fonts  map[string]FontResource `json:"fonts"`
	Colors map[string]Color        `json:"colors"`
	Styles map[string]Style        `json:"styles"`
}

// FontResource 描述字体资源，src 可以是文件路径或 builtin:* 形式。
type FontResource struct {
	Name      string `json:"name"`
	Src       string `json:"src"`
	Style     string `json:"style"`
	Family    string `json:"family"`    // 渲染器使用的 Family 名称
	IsBuiltin bool   `json:"isBuiltin"` // 是否为内建字体
	Fallback  string `json:"fallback"`
}

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Style 用于描述可继承的文本样式。
type Style struct {
	Name    string            `json:"name"`
	Extends string            `json:"extends,omitempty"`
	Props   map[string]string `json:"props"`
}

// ClampBox 是一个已完成截断计算的盒子。坐标、尺寸、字号与行高均为 mm。
type ClampBox struct {
	ID         string      `json:"id"`
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Font       string      `json:"font"`
	FontSize   float64     `json:"fontSize"`
	LineHeight float64     `json:"lineHeight"`
	Color      Color       `json:"color"`
	Border     *Color      `json:"border,omitempty"`
	Expanded   bool        `json:"expanded,omitempty"`
	Content    []fit.Node  `json:"content"`
	Fit        fit.Result  `json:"fit"`
	Lines      []FlowLine  `json:"lines"`
	Overflow   float64     `json:"overflow,omitempty"` // 展开态下内容超出盒子的高度
	Debug      *ClampDebug `json:"debug,omitempty"`
}

// FlowLine 表示排版后的一行，Y 相对盒子顶部。
type FlowLine struct {
	Items  []FlowItem `json:"items"`
	Y      float64    `json:"y"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}

// FlowItem 是行内的一段文字或一个原子盒子，X 相对行首。
type FlowItem struct {
	Kind   string  `json:"kind"` // text | box
	Text   string  `json:"text,omitempty"`
	X      float64 `json:"x"`
	Width  float64 `json:"width"`
	Height float64 `json:"height,omitempty"`
	Index  int     `json:"index"` // 对应 Content 下标，省略号为 -1
	Marker bool    `json:"marker,omitempty"`
	Slot   string  `json:"slot,omitempty"`
}

// ClampDebug holds optional debug info displayed only when enabled by BuildOptions.
type ClampDebug struct {
	RawUnits *RawUnits `json:"rawUnits,omitempty"`
}

// RawUnits describes original author-specified units for key fields.
type RawUnits struct {
	Width      *RawLengthJSON     `json:"width,omitempty"`
	Height     *RawLengthJSON     `json:"height,omitempty"`
	FontSize   *RawLengthJSON     `json:"fontSize,omitempty"`
	LineHeight *RawLineHeightJSON `json:"lineHeight,omitempty"`
}

// RawLengthJSON is a JSON-friendly representation of Length.
type RawLengthJSON struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// RawLineHeightJSON is a JSON-friendly representation of LineHeightSpec.
type RawLineHeightJSON struct {
	Kind   string  `json:"kind"` // "factor" | "absolute"
	Factor float64 `json:"factor,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Unit   string  `json:"unit,omitempty"`
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}
