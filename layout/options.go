package layout

import (
	"log/slog"

	"github.com/ByLCY/textfit/fit"
	"github.com/ByLCY/textfit/internal/logging"
)

// BuildOptions 配置布局阶段所需的依赖，例如排版后端与截断参数。
type BuildOptions struct {
	Typesetter Typesetter
	Fit        fit.Options
	Margin     float64 // 页面边距（mm），0 表示默认 10mm
	Logger     *slog.Logger
	Expand     []string // 以展开态构建的 clamp ID，等同于 expanded: true
	Debug      DebugOptions
}

// DebugOptions 控制调试相关输出。
type DebugOptions struct {
	RawUnits bool // 在调试 JSON 中输出 debug.rawUnits 影子字段
}

// Typesetter 是字体度量后端：返回给定字体与字号下文本的排版宽度。
// 字号与返回的宽度均为 mm。
type Typesetter interface {
	TextWidth(content string, font FontResource, fontSize float64) (float64, error)
}

func (o BuildOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.NewNop()
}

func (o BuildOptions) margin() float64 {
	if o.Margin > 0 {
		return o.Margin
	}
	return defaultMargin
}
