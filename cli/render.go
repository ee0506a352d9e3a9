package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	canvasrenderer "github.com/ByLCY/textfit/renderer/canvas"
)

func newRenderCommand(a *app) *cobra.Command {
	in := &inputFlags{}
	var output, debugPath string
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render every clamp into a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if output == "" {
				output = strings.TrimSuffix(input, filepath.Ext(input)) + ".pdf"
			}
			r := canvasrenderer.NewRenderer(baseDir(input))
			result, err := a.build(cmd.Context(), input, r, in)
			if err != nil {
				return err
			}
			if debugPath != "" {
				if err := writeDebug(result, debugPath); err != nil {
					return err
				}
			}
			pdfBytes, err := r.Render(result)
			if err != nil {
				return fmt.Errorf("渲染 PDF 失败: %w", err)
			}
			if err := writeOutput(output, pdfBytes); err != nil {
				return err
			}
			a.logger.Info("已生成 PDF", "path", output, "clamps", len(result.Boxes))
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&output, "out", "o", "", "PDF 输出路径（默认与输入同名）")
	cmd.Flags().StringVar(&debugPath, "debug", "", "布局调试 JSON 输出路径")
	return cmd
}

func baseDir(input string) string {
	return filepath.Dir(input)
}
