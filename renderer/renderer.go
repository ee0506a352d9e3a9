package renderer

import "github.com/ByLCY/textfit/layout"

// Renderer 将布局结果输出为目标格式（PDF、终端文本等）。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}
