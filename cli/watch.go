package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/textfit/clamp"
	"github.com/ByLCY/textfit/fit"
	"github.com/ByLCY/textfit/layout"
)

func newWatchCommand(a *app) *cobra.Command {
	in := &inputFlags{}
	var output, metricsAddr string
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-fit clamps whenever the DSL or data file changes",
		Long: `watch 为每个 clamp 启动一个组件，文件变化时按 resize/mutate 触发重新计算。
默认把预览写到标准输出；指定 --out 时改为持续更新 PDF。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debounce <= 0 {
				debounce = a.cfg.Watch.Debounce
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Watch.MetricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			name := "terminal"
			if output != "" {
				name = "canvas"
			}
			be, err := a.newBackend(name, baseDir(args[0]))
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			s := newSession(a, args[0], in, be, clamp.NewMetrics(reg))
			if output != "" {
				s.output = pdfOutput(be, output)
			} else {
				s.output = streamOutput(be, cmd.OutOrStdout())
			}

			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(gctx, metricsAddr, newStatusHandler(reg, s), a) })
			}
			g.Go(func() error { return s.watch(gctx, debounce) })
			return g.Wait()
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&output, "out", "o", "", "持续更新的 PDF 路径（默认输出终端预览）")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "prometheus 指标监听地址，如 :2112（默认取配置）")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "文件变化后的合并等待时间（默认取配置）")
	return cmd
}

func streamOutput(be backend, w io.Writer) func(*layout.Result) error {
	return func(res *layout.Result) error {
		out, err := be.Render(res)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
}

func pdfOutput(be backend, path string) func(*layout.Result) error {
	return func(res *layout.Result) error {
		out, err := be.Render(res)
		if err != nil {
			return err
		}
		return writeOutput(path, out)
	}
}

// entry 是 session 中一个 clamp 的组件与最近一次可用的结果。
type entry struct {
	spec   layout.ClampSpec
	comp   *clamp.Component
	cancel context.CancelFunc
	snap   clamp.Snapshot
	ready  bool // 至少有过一次成功的计算
}

// session 把 DSL 文件中的每个 clamp 映射为一个 clamp.Component，
// 重新加载时把差异转换成 Resize/Mutate/Expand/Collapse 触发。
type session struct {
	app     *app
	path    string
	in      *inputFlags
	be      backend
	metrics *clamp.Metrics
	output  func(*layout.Result) error

	mu      sync.Mutex
	ctx     context.Context
	wg      sync.WaitGroup
	plan    *layout.Plan
	entries map[string]*entry
}

func newSession(a *app, path string, in *inputFlags, be backend, metrics *clamp.Metrics) *session {
	return &session{
		app:     a,
		path:    path,
		in:      in,
		be:      be,
		metrics: metrics,
		output:  func(*layout.Result) error { return nil },
		entries: map[string]*entry{},
	}
}

// start 记录组件运行所用的 ctx 并完成首次加载。
func (s *session) start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s.reload()
}

// stop 停止全部组件并等待其退出。
func (s *session) stop() {
	s.mu.Lock()
	for id := range s.entries {
		s.dropLocked(id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// watch 监听输入文件所在目录，变化合并 debounce 时长后重新加载。
func (s *session) watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()

	targets := []string{filepath.Clean(s.path)}
	if s.in.dataPath != "" {
		targets = append(targets, filepath.Clean(s.in.dataPath))
	}
	dirs := map[string]bool{}
	for _, t := range targets {
		dirs[filepath.Dir(t)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("监听目录 %s 失败: %w", dir, err)
		}
	}

	if err := s.start(ctx); err != nil {
		return err
	}
	defer s.stop()
	s.app.logger.Info("watching", "file", s.path, "targets", targets)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !slices.Contains(targets, filepath.Clean(ev.Name)) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				reload = time.After(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.app.logger.Warn("file watcher error", "error", err)
		case <-reload:
			reload = nil
			if err := s.reload(); err != nil {
				s.app.logger.Warn("重新加载失败，保留上一次结果", "error", err)
			}
		}
	}
}

// reload 重新解析输入并把变化分发给各组件。
func (s *session) reload() error {
	plan, err := s.app.prepare(s.path, s.be, s.in)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return errors.New("session 尚未启动")
	}
	s.plan = plan
	seen := map[string]bool{}
	for _, spec := range plan.Clamps {
		seen[spec.ID] = true
		e, ok := s.entries[spec.ID]
		// 样式或截断参数变化需要新的测量器，直接换掉组件。
		if ok && (e.spec.Style != spec.Style || e.spec.Fit != spec.Fit) {
			s.dropLocked(spec.ID)
			ok = false
		}
		if !ok {
			s.startLocked(spec)
			continue
		}
		if err := s.updateLocked(e, spec); err != nil {
			return err
		}
	}
	for id := range s.entries {
		if !seen[id] {
			s.dropLocked(id)
		}
	}
	// 仅位置或颜色变化时没有新快照，这里直接重新输出。
	s.emitLocked()
	return nil
}

func (s *session) startLocked(spec layout.ClampSpec) {
	flow := spec.Flow(s.be)
	comp := clamp.New(spec.ID,
		func(box fit.Box) fit.Measurer { return flow.At(box.Width) },
		clamp.WithFitOptions(spec.Fit),
		clamp.WithMetrics(s.metrics),
		clamp.WithLogger(s.app.logger),
	)
	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{spec: spec, comp: comp, cancel: cancel}
	s.entries[spec.ID] = e
	comp.Subscribe(func(snap clamp.Snapshot) { s.onSnapshot(comp, snap) })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = comp.Run(ctx)
	}()

	comp.Attach(spec.Box(), spec.Content)
	if spec.Expanded {
		_ = comp.Expand()
	}
}

func (s *session) updateLocked(e *entry, spec layout.ClampSpec) error {
	old := e.spec
	e.spec = spec
	var errs []error
	if old.Box() != spec.Box() {
		errs = append(errs, e.comp.Resize(spec.Box()))
	}
	if !slices.Equal(old.Content, spec.Content) {
		errs = append(errs, e.comp.Mutate(spec.Content))
	}
	if spec.Expanded && !old.Expanded {
		errs = append(errs, e.comp.Expand())
	} else if !spec.Expanded && old.Expanded {
		errs = append(errs, e.comp.Collapse())
	}
	return errors.Join(errs...)
}

func (s *session) dropLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.comp.Detach()
	e.cancel()
	delete(s.entries, id)
}

func (s *session) onSnapshot(comp *clamp.Component, snap clamp.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[snap.ID]
	if !ok || e.comp != comp {
		return
	}
	if snap.Err != nil {
		s.app.logger.Warn("clamp 重新计算失败，保留上一次结果", "id", snap.ID, "error", snap.Err)
	}
	e.snap = snap
	if snap.Err == nil {
		e.ready = true
	}
	s.emitLocked()
}

// emitLocked 在所有 clamp 都有结果后按文档顺序输出。
func (s *session) emitLocked() {
	if s.plan == nil {
		return
	}
	boxes := make([]layout.ClampBox, 0, len(s.plan.Clamps))
	for _, spec := range s.plan.Clamps {
		e, ok := s.entries[spec.ID]
		if !ok || !e.ready {
			return
		}
		box, err := e.compose(s.be)
		if err != nil {
			s.app.logger.Warn("clamp 排版失败", "id", spec.ID, "error", err)
			return
		}
		boxes = append(boxes, box)
	}
	if err := s.output(s.plan.Assemble(boxes)); err != nil {
		s.app.logger.Warn("输出失败", "error", err)
	}
}

// compose 用快照中的内容与尺寸排版，快照可能落后于最新的 spec。
func (e *entry) compose(ts layout.Typesetter) (layout.ClampBox, error) {
	spec := e.spec
	spec.Content = e.snap.Content
	spec.Width, spec.Height = e.snap.Box.Width, e.snap.Box.Height
	return spec.Compose(spec.Flow(ts), e.snap.Result, e.snap.Expanded)
}

// statuses 返回各 clamp 的当前状态，供 HTTP 接口使用。
func (s *session) statuses() []clampStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return []clampStatus{}
	}
	out := make([]clampStatus, 0, len(s.plan.Clamps))
	for _, spec := range s.plan.Clamps {
		if e, ok := s.entries[spec.ID]; ok {
			out = append(out, statusOf(e.comp.State(), e.snap))
		}
	}
	return out
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, a *app) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("metrics server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("指标服务失败: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
			return srv.Close()
		}
		return nil
	}
}
