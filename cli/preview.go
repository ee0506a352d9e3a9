package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	terminalrenderer "github.com/ByLCY/textfit/renderer/terminal"
)

func newPreviewCommand(a *app) *cobra.Command {
	in := &inputFlags{}
	var cellWidth float64
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Preview every clamp in the terminal",
		Long:  `按字符格测宽排版（CJK 宽字符占两格），并用边框画出每个 clamp 盒子。`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cellWidth <= 0 {
				cellWidth = a.cfg.Render.CellWidth
			}
			r := terminalrenderer.New(cellWidth)
			result, err := a.build(cmd.Context(), args[0], r, in)
			if err != nil {
				return err
			}
			out, err := r.Render(result)
			if err != nil {
				return fmt.Errorf("渲染预览失败: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	in.register(cmd)
	cmd.Flags().Float64Var(&cellWidth, "cell-width", 0, "每个字符格对应的宽度（mm，默认取配置）")
	return cmd
}
