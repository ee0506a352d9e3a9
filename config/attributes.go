package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ByLCY/textfit/fit"
)

// Attributes 是 clamp 上与截断相关的属性。未出现的键保持零值，由 Merge 回落到默认配置。
//
// ellipsis 不能关闭省略号：写成 "" 时 fit.New 仍使用 fit.DefaultEllipsis，
// 截断结果总会带上标记。
type Attributes struct {
	Ellipsis    *string `mapstructure:"ellipsis"`
	Granularity string  `mapstructure:"granularity"`
	MaxProbes   int     `mapstructure:"max-probes"`
	Expanded    bool    `mapstructure:"expanded"`
}

// DecodeAttributes 把 DSL 属性表解码为 Attributes。值以字符串给出，数字与布尔按弱类型转换。
// 与截断无关的键（width、font 等）被忽略。
func DecodeAttributes(attrs map[string]string) (Attributes, error) {
	var out Attributes
	input := make(map[string]any, len(attrs))
	for k, v := range attrs {
		input[strings.ToLower(strings.TrimSpace(k))] = v
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Attributes{}, err
	}
	if err := dec.Decode(input); err != nil {
		return Attributes{}, fmt.Errorf("解析 clamp 属性失败: %w", err)
	}
	if out.MaxProbes < 0 {
		return Attributes{}, fmt.Errorf("max-probes 不能为负数: %d", out.MaxProbes)
	}
	if _, ok := fit.ParseGranularity(out.Granularity); !ok {
		return Attributes{}, fmt.Errorf("未知截断粒度 %q", out.Granularity)
	}
	return out, nil
}

// Merge 用属性覆盖默认截断参数。显式写出的空 ellipsis 仍回落到默认标记。
func (a Attributes) Merge(base fit.Options) fit.Options {
	if a.Ellipsis != nil {
		base.Ellipsis = *a.Ellipsis
	}
	if a.Granularity != "" {
		base.Granularity, _ = fit.ParseGranularity(a.Granularity)
	}
	if a.MaxProbes > 0 {
		base.MaxProbes = a.MaxProbes
	}
	return base
}
