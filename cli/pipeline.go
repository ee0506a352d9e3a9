package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ByLCY/textfit/binding"
	"github.com/ByLCY/textfit/dsl"
	"github.com/ByLCY/textfit/layout"
	"github.com/ByLCY/textfit/renderer"
	canvasrenderer "github.com/ByLCY/textfit/renderer/canvas"
	terminalrenderer "github.com/ByLCY/textfit/renderer/terminal"
)

// backend 同时提供字体度量与渲染。
type backend interface {
	layout.Typesetter
	renderer.Renderer
}

// inputFlags 是各子命令共用的输入参数。
type inputFlags struct {
	dataPath string
	dataJSON string
	expand   []string
	debugRaw bool
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dataPath, "data", "", "绑定到 DSL 的数据文件（JSON 或 YAML）")
	cmd.Flags().StringVar(&f.dataJSON, "data-json", "", "绑定到 DSL 的 JSON 数据")
	cmd.Flags().StringSliceVar(&f.expand, "expand", nil, "以展开态输出的 clamp ID")
	cmd.Flags().BoolVar(&f.debugRaw, "debug-raw-units", false, "在调试 JSON 中输出 debug.rawUnits 影子字段")
}

func (f *inputFlags) data() (any, error) {
	switch {
	case f.dataJSON != "":
		var data any
		if err := json.Unmarshal([]byte(f.dataJSON), &data); err != nil {
			return nil, fmt.Errorf("解析 data JSON 失败: %w", err)
		}
		return data, nil
	case f.dataPath != "":
		return binding.LoadFile(f.dataPath)
	default:
		return nil, nil
	}
}

// newBackend 按名称创建排版后端，baseDir 用于解析字体路径。
func (a *app) newBackend(name, baseDir string) (backend, error) {
	switch name {
	case "", "canvas", "pdf":
		return canvasrenderer.NewRenderer(baseDir), nil
	case "terminal":
		return terminalrenderer.New(a.cfg.Render.CellWidth), nil
	default:
		return nil, fmt.Errorf("未知后端 %q，应为 canvas 或 terminal", name)
	}
}

func (a *app) buildOptions(ts layout.Typesetter, in *inputFlags) (layout.BuildOptions, error) {
	fo, err := a.cfg.Fit.Options()
	if err != nil {
		return layout.BuildOptions{}, err
	}
	return layout.BuildOptions{
		Typesetter: ts,
		Fit:        fo,
		Margin:     a.cfg.Render.Margin,
		Logger:     a.logger,
		Expand:     in.expand,
		Debug:      layout.DebugOptions{RawUnits: in.debugRaw},
	}, nil
}

// load 解析 DSL 文件并读取绑定数据。
func (in *inputFlags) load(path string) (*dsl.Document, any, error) {
	doc, err := dsl.ParseFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("解析 DSL 失败: %w", err)
	}
	data, err := in.data()
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// prepare 生成布局计划，不做测量。
func (a *app) prepare(path string, ts layout.Typesetter, in *inputFlags) (*layout.Plan, error) {
	doc, data, err := in.load(path)
	if err != nil {
		return nil, err
	}
	opts, err := a.buildOptions(ts, in)
	if err != nil {
		return nil, err
	}
	plan, err := layout.Prepare(doc, data, opts)
	if err != nil {
		return nil, fmt.Errorf("布局计算失败: %w", err)
	}
	return plan, nil
}

// build 串联解析、数据绑定与布局。
func (a *app) build(ctx context.Context, path string, ts layout.Typesetter, in *inputFlags) (*layout.Result, error) {
	doc, data, err := in.load(path)
	if err != nil {
		return nil, err
	}
	opts, err := a.buildOptions(ts, in)
	if err != nil {
		return nil, err
	}
	result, err := layout.Build(ctx, doc, data, opts)
	if err != nil {
		return nil, fmt.Errorf("布局计算失败: %w", err)
	}
	return result, nil
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func writeOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}
