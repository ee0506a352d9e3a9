// Package cli 实现 textfit 命令行：fit 输出截断报告，render 生成 PDF，
// preview 在终端预览，watch 监听文件变化并持续重新计算。
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ByLCY/textfit/config"
	"github.com/ByLCY/textfit/internal/logging"
)

// app 保存所有子命令共享的配置与日志。
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand 创建根命令及全部子命令。
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "textfit",
		Short: "Clamp inline text into fixed boxes with an ellipsis",
		Long: `textfit 读取描述 clamp 盒子的 DSL 文件，在每个盒子内找出能放下的最长内容前缀，
并以省略号结尾。结果可以输出为报告、PDF 或终端预览。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "配置文件路径（默认查找 ./textfit.yaml）")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "日志级别 debug|info|warn|error，覆盖配置文件")

	root.AddCommand(
		newFitCommand(a),
		newRenderCommand(a),
		newPreviewCommand(a),
		newWatchCommand(a),
	)
	return root
}

// Execute 运行根命令，出错时以非零状态退出。
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(lvl)
	return nil
}
