package canvasrenderer

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/textfit/fonts"
	"github.com/ByLCY/textfit/layout"
	"github.com/ByLCY/textfit/renderer"
)

const borderWidth = 0.2

// Renderer 基于 github.com/tdewolff/canvas 测量文本并输出 PDF。
type Renderer struct {
	baseDir string

	// injected resources
	fontBlobs map[string][]byte // by unique name

	fontMu         sync.Mutex
	fontFamilies   map[string]*fontFamilyEntry
	faces          map[faceKey]*canvas.FontFace
	fallbackFamily *canvas.FontFamily
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

type fontFamilyEntry struct {
	family *canvas.FontFamily
	style  canvas.FontStyle
}

type faceKey struct {
	font   string
	sizePt float64
	color  layout.Color
}

// Options configures the canvas renderer.
type Options struct {
	BaseDir string
	Fonts   map[string]Resource // fonts accessible via builtin:<name>, taking precedence over the bundled ones
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// NewRenderer creates a canvas-based renderer rooted at baseDir for resolving assets.
func NewRenderer(baseDir string) *Renderer { return NewRendererWithOptions(Options{BaseDir: baseDir}) }

// NewRendererWithOptions creates a renderer with injected resources and optional baseDir.
func NewRendererWithOptions(opts Options) *Renderer {
	r := &Renderer{
		baseDir:      opts.BaseDir,
		fontBlobs:    map[string][]byte{},
		fontFamilies: map[string]*fontFamilyEntry{},
		faces:        map[faceKey]*canvas.FontFace{},
	}
	for name, res := range opts.Fonts {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			r.fontBlobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			data, _ := os.ReadFile(res.Path) // ignore error here; will be caught when actually used
			if len(data) > 0 {
				r.fontBlobs[name] = data
			}
		}
	}
	return r
}

// TextWidth 实现 layout.Typesetter。fontSize 与返回值均为 mm，创建字体面时换算为 pt。
func (r *Renderer) TextWidth(content string, font layout.FontResource, fontSize float64) (float64, error) {
	if content == "" {
		return 0, nil
	}
	face, err := r.fontFace(font, toPt(fontSize), layout.Color{})
	if err != nil {
		return 0, err
	}
	return face.TextWidth(content), nil
}

// Render renders the result into a PDF byte slice.
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if len(result.Boxes) == 0 || result.Page.Width <= 0 || result.Page.Height <= 0 {
		return nil, fmt.Errorf("缺少可渲染的盒子")
	}

	var buf bytes.Buffer
	writer := pdf.New(&buf, result.Page.Width, result.Page.Height, nil)
	r.applyMeta(writer, result.Meta)

	c := canvas.New(result.Page.Width, result.Page.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	for _, box := range result.Boxes {
		font := resolveFontResource(box.Font, result.Resources.Fonts)
		if err := r.drawClampBox(ctx, box, font); err != nil {
			return nil, fmt.Errorf("绘制 clamp %s 失败: %w", box.ID, err)
		}
	}
	c.RenderTo(writer)

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	if writer == nil {
		return
	}
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, meta.Creator)
}

// drawClampBox 逐行绘制盒子内容。行内各项坐标相对盒子左上角，均为 mm。
func (r *Renderer) drawClampBox(ctx *canvas.Context, box layout.ClampBox, fontRes layout.FontResource) error {
	if box.Border != nil {
		r.strokeRect(ctx, box.X, box.Y, box.Width, box.Height, *box.Border)
	}

	// ClampBox 的字号为 mm；创建字体面需要 pt，这里做一次 mm→pt。
	face, err := r.fontFace(fontRes, toPt(box.FontSize), box.Color)
	if err != nil {
		return err
	}
	metrics := face.Metrics()

	for _, line := range box.Lines {
		top := box.Y + line.Y
		// 基线：字体行高在行框内垂直居中，再加上上升部
		baseline := top + (line.Height-metrics.LineHeight)/2 + metrics.Ascent
		for _, item := range line.Items {
			x := box.X + item.X
			if item.Kind == "box" {
				elTop := top + (line.Height-item.Height)/2
				r.strokeRect(ctx, x, elTop, item.Width, item.Height, box.Color)
				if item.Text != "" {
					label := canvas.NewTextLine(face, item.Text, canvas.Center)
					ctx.DrawText(x+item.Width/2, baseline, label)
				}
				continue
			}
			ctx.DrawText(x, baseline, canvas.NewTextLine(face, item.Text, canvas.Left))
		}
	}
	return nil
}

func (r *Renderer) strokeRect(ctx *canvas.Context, x, y, w, h float64, col layout.Color) {
	if w <= 0 || h <= 0 {
		return
	}
	ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
	ctx.SetStrokeColor(colorFromLayout(col))
	ctx.SetStrokeWidth(borderWidth)
	ctx.DrawPath(x, y, canvas.Rectangle(w, h))
}

func (r *Renderer) fontFace(font layout.FontResource, size float64, col layout.Color) (*canvas.FontFace, error) {
	key := faceKey{font: fontCacheKey(font), sizePt: size, color: col}
	r.fontMu.Lock()
	if face, ok := r.faces[key]; ok {
		r.fontMu.Unlock()
		return face, nil
	}
	r.fontMu.Unlock()

	family, style, err := r.ensureFontFamily(font)
	if err != nil {
		return nil, err
	}
	face := family.Face(size, colorFromLayout(col), style, canvas.FontNormal)

	r.fontMu.Lock()
	r.faces[key] = face
	r.fontMu.Unlock()
	return face, nil
}

func (r *Renderer) ensureFontFamily(font layout.FontResource) (*canvas.FontFamily, canvas.FontStyle, error) {
	key := fontCacheKey(font)
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if entry, ok := r.fontFamilies[key]; ok {
		return entry.family, entry.style, nil
	}

	style := parseFontStyle(font.Style)
	familyName := font.Family
	if familyName == "" {
		familyName = font.Name
	}
	if familyName == "" {
		familyName = "Body"
	}
	family := canvas.NewFontFamily(familyName)

	if err := r.loadFontIntoFamily(family, font, style); err != nil {
		fallback, fbStyle, fbErr := r.fallback()
		if fbErr != nil {
			return nil, canvas.FontRegular, err
		}
		r.fontFamilies[key] = &fontFamilyEntry{family: fallback, style: fbStyle}
		return fallback, fbStyle, nil
	}

	entry := &fontFamilyEntry{family: family, style: style}
	r.fontFamilies[key] = entry
	return family, style, nil
}

func (r *Renderer) loadFontIntoFamily(family *canvas.FontFamily, font layout.FontResource, style canvas.FontStyle) error {
	data, err := r.loadFontBytes(font, style)
	if err != nil {
		return err
	}
	return family.LoadFont(data, 0, style)
}

func (r *Renderer) loadFontBytes(font layout.FontResource, style canvas.FontStyle) ([]byte, error) {
	if font.Src == "" {
		return nil, fmt.Errorf("字体 %s 缺少 src", font.Name)
	}
	src := font.Src
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		if blob, ok := r.fontBlobs[name]; ok {
			return blob, nil
		}
		return fonts.Load(fonts.Variant(name, isBold(style), style&canvas.FontItalic != 0))
	}
	// Path based
	path := src
	if r.baseDir == "" && !filepath.IsAbs(path) {
		return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s（请改用 builtin:）", src)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.baseDir, path)
	}
	return os.ReadFile(path)
}

func (r *Renderer) fallback() (*canvas.FontFamily, canvas.FontStyle, error) {
	if r.fallbackFamily != nil {
		return r.fallbackFamily, canvas.FontRegular, nil
	}
	data, err := fonts.Load(fonts.Default)
	if err != nil {
		return nil, canvas.FontRegular, err
	}
	family := canvas.NewFontFamily("textfit-fallback")
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, canvas.FontRegular, err
	}
	r.fallbackFamily = family
	return family, canvas.FontRegular, nil
}

func resolveFontResource(name string, set map[string]layout.FontResource) layout.FontResource {
	if font, ok := set[name]; ok {
		return font
	}
	if font, ok := set["Body"]; ok {
		return font
	}
	for _, font := range set {
		return font
	}
	return layout.FontResource{Name: "Body", Src: "builtin:" + fonts.Default}
}

func parseFontStyle(style string) canvas.FontStyle {
	if style == "" {
		return canvas.FontRegular
	}
	s := strings.ToLower(style)
	result := canvas.FontRegular
	switch {
	case strings.Contains(s, "black"):
		result = canvas.FontBlack
	case strings.Contains(s, "extrabold"):
		result = canvas.FontExtraBold
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		result = canvas.FontSemiBold
	case strings.Contains(s, "bold"):
		result = canvas.FontBold
	case strings.Contains(s, "medium"):
		result = canvas.FontMedium
	case strings.Contains(s, "light"):
		result = canvas.FontLight
	default:
		result = canvas.FontRegular
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") {
		result |= canvas.FontItalic
	}
	return result
}

func isBold(style canvas.FontStyle) bool {
	switch style &^ canvas.FontItalic {
	case canvas.FontSemiBold, canvas.FontBold, canvas.FontExtraBold, canvas.FontBlack:
		return true
	default:
		return false
	}
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s", font.Name, font.Src, font.Style)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}

// toPt 将 mm 转换为 pt。
func toPt(mm float64) float64 { return mm * layout.MmToPt }
