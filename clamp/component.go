// Package clamp 把 fit 包装成带状态的组件：挂载、尺寸变化、内容变化、展开与收起
// 都会排入同一个待处理请求，由 Process 或 Run 串行执行截断计算。
//
// 待处理请求只有一个，后到的触发与之合并（最后的请求生效）；入队时会取消正在进行的
// 计算，被取代的计算不会发布结果。
package clamp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ByLCY/textfit/fit"
	"github.com/ByLCY/textfit/internal/logging"
)

// MeasurerFactory 为给定盒子返回测量器。排版宽度依赖盒子，所以每次计算都重新获取。
type MeasurerFactory func(box fit.Box) fit.Measurer

// Option 配置 Component。
type Option func(*Component)

// WithFitOptions 设置截断参数（省略号、切分粒度、探测上限）。
func WithFitOptions(opts fit.Options) Option {
	return func(c *Component) { c.fitter = fit.New(opts) }
}

// WithMetrics 记录 prometheus 指标。
func WithMetrics(m *Metrics) Option {
	return func(c *Component) { c.metrics = m }
}

// WithLogger 设置日志。
func WithLogger(l *slog.Logger) Option {
	return func(c *Component) {
		if l != nil {
			c.logger = l
		}
	}
}

// request 是合并后的待处理请求。
type request struct {
	kinds  []Trigger
	refit  bool
	expand bool
}

// Component 是一个 clamp 实例，可被多个 goroutine 同时触发。
type Component struct {
	id      string
	factory MeasurerFactory
	fitter  *fit.Fitter
	metrics *Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	attached bool
	state    State
	box      fit.Box
	content  []fit.Node
	pending  *request
	cancel   context.CancelFunc
	snap     Snapshot
	fitted   bool // 至少有过一次成功的计算
	subs     map[int]func(Snapshot)
	nextSub  int
	wake     chan struct{}
}

// New 创建组件，挂载前处于 StateDetached。
func New(id string, factory MeasurerFactory, opts ...Option) *Component {
	c := &Component{
		id:      id,
		factory: factory,
		fitter:  fit.New(fit.Options{}),
		logger:  logging.NewNop(),
		subs:    map[int]func(Snapshot){},
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snap = Snapshot{ID: id, State: StateDetached}
	return c
}

// ID 返回组件标识。
func (c *Component) ID() string { return c.id }

// State 返回当前状态，包括尚未处理的触发造成的 Measuring。
func (c *Component) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot 返回最近一次发布的快照。
func (c *Component) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Pending 报告是否有待处理的请求。
func (c *Component) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Subscribe 注册快照回调，返回取消函数。回调在 Process 所在 goroutine 中同步调用。
func (c *Component) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Attach 挂载组件并排入首次计算。重复 Attach 等同于同时改变尺寸和内容。
func (c *Component) Attach(box fit.Box, content []fit.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = true
	c.box = box
	c.content = slices.Clone(content)
	c.enqueueLocked(TriggerAttach)
}

// Detach 卸载组件：取消进行中的计算并丢弃待处理请求。
func (c *Component) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
	c.pending = nil
	c.state = StateDetached
	if c.cancel != nil {
		c.cancel()
	}
}

// Resize 更新盒子尺寸，任何状态下都回到 Measuring。
func (c *Component) Resize(box fit.Box) error {
	return c.trigger(TriggerResize, func() { c.box = box })
}

// Mutate 替换内容快照，任何状态下都回到 Measuring。
func (c *Component) Mutate(content []fit.Node) error {
	content = slices.Clone(content)
	return c.trigger(TriggerMutate, func() { c.content = content })
}

// Expand 请求展开。仅当截断发生时生效，否则保持 Fitted。
func (c *Component) Expand() error {
	return c.trigger(TriggerExpand, nil)
}

// Collapse 请求收起：展开态回到 Measuring 重新计算，其他状态下只撤销尚未处理的展开请求。
func (c *Component) Collapse() error {
	return c.trigger(TriggerCollapse, nil)
}

func (c *Component) trigger(kind Trigger, update func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return fmt.Errorf("%s %s: %w", c.id, kind, ErrDetached)
	}
	if update != nil {
		update()
	}
	c.enqueueLocked(kind)
	return nil
}

// enqueueLocked 把触发合并进待处理请求并取消进行中的计算。调用方持有 c.mu。
func (c *Component) enqueueLocked(kind Trigger) {
	r := c.pending
	if r == nil {
		r = &request{}
		c.pending = r
	}
	r.kinds = append(r.kinds, kind)
	switch kind {
	case TriggerAttach, TriggerResize, TriggerMutate:
		r.refit = true
		r.expand = false
		c.state = StateMeasuring
	case TriggerExpand:
		r.expand = true
	case TriggerCollapse:
		r.expand = false
		if c.state == StateExpanded {
			r.refit = true
			c.state = StateMeasuring
		}
	}
	c.metrics.trigger(kind)
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Process 同步处理一个待处理请求。没有请求时返回 false。
// 计算被新的触发取代时不发布快照，返回 true，请求留给下一次 Process。
func (c *Component) Process(ctx context.Context) (Snapshot, bool) {
	c.mu.Lock()
	req := c.pending
	if req == nil || !c.attached {
		snap := c.snap
		c.mu.Unlock()
		return snap, false
	}
	c.pending = nil
	prev := c.snap
	box, content := c.box, c.content

	// 只有展开请求且已有结果时无需重新测量；未截断时展开不生效。
	if !req.refit && c.fitted && prev.Err == nil {
		if !req.expand || prev.Expanded || !prev.Result.Truncated {
			c.state = prev.State
			c.mu.Unlock()
			return prev, true
		}
		snap := prev
		snap.Seq++
		snap.State = StateExpanded
		snap.Expanded = true
		c.state = StateExpanded
		c.snap = snap
		subs := c.subscribersLocked()
		c.mu.Unlock()
		c.logger.Debug("clamp expanded", "id", c.id)
		publish(subs, snap)
		return snap, true
	}

	passCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateMeasuring
	c.mu.Unlock()
	defer cancel()

	res, err := c.fitter.Fit(passCtx, content, box, c.factory(box))

	c.mu.Lock()
	c.cancel = nil
	if ctx.Err() != nil {
		// 外部 ctx 结束：放回请求，留待下次处理。
		c.requeueLocked(req)
		c.mu.Unlock()
		return prev, true
	}
	if c.pending != nil || !c.attached {
		c.requeueLocked(req)
		c.mu.Unlock()
		c.metrics.pass(outcomeSuperseded, res.Probes)
		c.logger.Debug("clamp pass superseded", "id", c.id, "triggers", triggerNames(req.kinds))
		return prev, true
	}

	var snap Snapshot
	if err != nil {
		snap = prev
		snap.Seq++
		switch {
		case !c.fitted:
			snap.State = StateMeasuring
		case prev.Expanded:
			snap.State = StateExpanded
		default:
			snap.State = StateFitted
		}
		snap.Err = err
		c.metrics.pass(outcomeError, 0)
		c.logger.Warn("clamp fit failed", "id", c.id, "error", err)
	} else {
		c.fitted = true
		expanded := req.expand && res.Truncated
		snap = Snapshot{
			ID:       c.id,
			Seq:      prev.Seq + 1,
			State:    StateFitted,
			Box:      box,
			Content:  content,
			Result:   res,
			Expanded: expanded,
		}
		if expanded {
			snap.State = StateExpanded
		}
		c.metrics.pass(outcome(res), res.Probes)
		c.logger.Debug("clamp fitted",
			"id", c.id,
			"truncated", res.Truncated,
			"collapsed", res.Collapsed,
			"probes", res.Probes,
			"triggers", triggerNames(req.kinds),
		)
	}
	c.state = snap.State
	c.snap = snap
	subs := c.subscribersLocked()
	c.mu.Unlock()

	publish(subs, snap)
	return snap, true
}

// requeueLocked 把未完成的请求并回待处理请求。新请求的展开意图优先，
// 但被中断的尺寸或内容变化仍需重新计算。调用方持有 c.mu。
func (c *Component) requeueLocked(req *request) {
	if !c.attached {
		return
	}
	if c.pending == nil {
		c.pending = req
		return
	}
	c.pending.kinds = append(slices.Clone(req.kinds), c.pending.kinds...)
	c.pending.refit = c.pending.refit || req.refit
}

// Run 循环处理请求直到 ctx 结束，返回 ctx.Err()。
func (c *Component) Run(ctx context.Context) error {
	for {
		for {
			if _, ok := c.Process(ctx); !ok {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}

func (c *Component) subscribersLocked() []func(Snapshot) {
	keys := make([]int, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]func(Snapshot), 0, len(keys))
	for _, k := range keys {
		out = append(out, c.subs[k])
	}
	return out
}

func publish(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func outcome(res fit.Result) string {
	switch {
	case res.Collapsed:
		return outcomeCollapsed
	case res.Truncated:
		return outcomeTruncated
	default:
		return outcomeFits
	}
}

func triggerNames(kinds []Trigger) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}
