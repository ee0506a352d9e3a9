// Package fonts 提供随程序内置的 Latin Modern 字体，供 builtin:<name> 形式的字体资源使用。
package fonts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-fonts/latin-modern/lmmono10regular"
	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/go-fonts/latin-modern/lmroman10bolditalic"
	"github.com/go-fonts/latin-modern/lmroman10italic"
	"github.com/go-fonts/latin-modern/lmroman10regular"
	"github.com/go-fonts/latin-modern/lmsans10bold"
	"github.com/go-fonts/latin-modern/lmsans10regular"
)

// Default 是未找到字体时使用的回退字体名。
const Default = "latin-modern"

var builtin = map[string][]byte{
	"latin-modern":             lmroman10regular.TTF,
	"latin-modern-bold":        lmroman10bold.TTF,
	"latin-modern-italic":      lmroman10italic.TTF,
	"latin-modern-bold-italic": lmroman10bolditalic.TTF,
	"latin-modern-sans":        lmsans10regular.TTF,
	"latin-modern-sans-bold":   lmsans10bold.TTF,
	"latin-modern-mono":        lmmono10regular.TTF,
}

// Load 返回内置字体的字节数据，name 可带 "builtin:" 前缀。
func Load(name string) ([]byte, error) {
	name = strings.ToLower(strings.TrimPrefix(name, "builtin:"))
	data, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("找不到内置字体 %s（可用：%s）", name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// Variant 返回 name 的粗体/斜体变体名；没有对应变体时返回 name 本身。
func Variant(name string, bold, italic bool) string {
	name = strings.ToLower(strings.TrimPrefix(name, "builtin:"))
	suffix := ""
	switch {
	case bold && italic:
		suffix = "-bold-italic"
	case bold:
		suffix = "-bold"
	case italic:
		suffix = "-italic"
	}
	if _, ok := builtin[name+suffix]; ok {
		return name + suffix
	}
	return name
}

// Names 列出所有内置字体名。
func Names() []string {
	out := make([]string, 0, len(builtin))
	for name := range builtin {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
