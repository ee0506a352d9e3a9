package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ByLCY/textfit/fit"
	"github.com/ByLCY/textfit/layout"
)

// clampReport 是单个 clamp 的截断摘要。
type clampReport struct {
	ID        string           `json:"id" yaml:"id"`
	Truncated bool             `json:"truncated" yaml:"truncated"`
	Collapsed bool             `json:"collapsed" yaml:"collapsed"`
	Expanded  bool             `json:"expanded" yaml:"expanded"`
	Probes    int              `json:"probes" yaml:"probes"`
	Boundary  fit.Boundary     `json:"boundary" yaml:"boundary"`
	Lines     int              `json:"lines" yaml:"lines"`
	Overflow  float64          `json:"overflow,omitempty" yaml:"overflow,omitempty"`
	Text      string           `json:"text" yaml:"text"`
	Nodes     []fit.Visibility `json:"nodes" yaml:"nodes"`
}

func reportOf(box layout.ClampBox) clampReport {
	return clampReport{
		ID:        box.ID,
		Truncated: box.Fit.Truncated,
		Collapsed: box.Fit.Collapsed,
		Expanded:  box.Expanded,
		Probes:    box.Fit.Probes,
		Boundary:  box.Fit.Boundary,
		Lines:     len(box.Lines),
		Overflow:  box.Overflow,
		Text:      fit.VisibleText(box.Content, box.Fit.Candidate),
		Nodes:     fit.Apply(box.Content, box.Fit.Candidate),
	}
}

func newFitCommand(a *app) *cobra.Command {
	in := &inputFlags{}
	var format, backendName, debugPath string
	cmd := &cobra.Command{
		Use:   "fit FILE",
		Short: "Print the truncation report of every clamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if backendName == "" {
				backendName = a.cfg.Render.Backend
			}
			be, err := a.newBackend(backendName, baseDir(args[0]))
			if err != nil {
				return err
			}
			result, err := a.build(cmd.Context(), args[0], be, in)
			if err != nil {
				return err
			}
			if debugPath != "" {
				if err := writeDebug(result, debugPath); err != nil {
					return err
				}
			}
			reports := make([]clampReport, 0, len(result.Boxes))
			for _, box := range result.Boxes {
				reports = append(reports, reportOf(box))
			}
			return encodeReports(cmd.OutOrStdout(), format, reports)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "json", "输出格式 json|yaml")
	cmd.Flags().StringVar(&backendName, "backend", "", "排版后端 canvas|terminal（默认取配置）")
	cmd.Flags().StringVar(&debugPath, "debug", "", "布局调试 JSON 输出路径")
	return cmd
}

func encodeReports(w io.Writer, format string, reports []clampReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(reports)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("未知输出格式 %q，应为 json 或 yaml", format)
	}
}
