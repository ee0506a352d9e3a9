package clamp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/textfit/fit"
)

const lorem = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod " +
	"tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam."

// cells 是等宽测量器：每个字符占一格，每行 box.Width 格，行高 10。
type cells struct {
	mu   sync.Mutex
	fail error
}

func (m *cells) factory(box fit.Box) fit.Measurer {
	cols := int(box.Width)
	return fit.MeasureFunc(func(_ context.Context, content []fit.Node, c fit.Candidate) (float64, error) {
		m.mu.Lock()
		err := m.fail
		m.mu.Unlock()
		if err != nil {
			return 0, err
		}
		n := 0
		for _, p := range fit.Project(content, c) {
			if p.Kind == fit.KindText {
				n += utf8.RuneCountInString(p.Text)
			} else if w, ok := p.Node.Handle.(int); ok {
				n += w
			}
		}
		return float64((n+cols-1)/cols) * 10, nil
	})
}

func (m *cells) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func loremContent() []fit.Node {
	return []fit.Node{
		fit.Text(lorem),
		fit.SlotElement(fit.SlotExpand, "more", 4),
		fit.SlotElement(fit.SlotCollapse, "less", 4),
	}
}

func newComponent(t *testing.T, opts ...Option) (*Component, *cells) {
	t.Helper()
	m := &cells{}
	return New("teaser", m.factory, opts...), m
}

func process(t *testing.T, c *Component) Snapshot {
	t.Helper()
	snap, ok := c.Process(context.Background())
	require.True(t, ok, "expected a pending request")
	return snap
}

func TestAttachFitsShortText(t *testing.T) {
	c, _ := newComponent(t)
	assert.Equal(t, StateDetached, c.State())

	c.Attach(fit.Box{Width: 20, Height: 20}, []fit.Node{fit.Text("Hello world")})
	assert.Equal(t, StateMeasuring, c.State())

	snap := process(t, c)
	require.NoError(t, snap.Err)
	assert.Equal(t, StateFitted, snap.State)
	assert.False(t, snap.Result.Truncated)
	assert.Equal(t, "Hello world", snap.Text())
	assert.Equal(t, uint64(1), snap.Seq)

	_, ok := c.Process(context.Background())
	assert.False(t, ok)
}

func TestExpandAndCollapse(t *testing.T) {
	c, _ := newComponent(t)
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())

	snap := process(t, c)
	require.True(t, snap.Result.Truncated)
	assert.True(t, strings.HasSuffix(snap.Text(), "… "))
	assert.True(t, snap.Visible().Expand)
	truncated := snap.Text()

	require.NoError(t, c.Expand())
	snap = process(t, c)
	assert.Equal(t, StateExpanded, snap.State)
	assert.True(t, snap.Expanded)
	assert.True(t, snap.Visible().Collapse)
	assert.False(t, snap.Visible().Expand)
	assert.Equal(t, lorem, snap.Text())

	require.NoError(t, c.Collapse())
	assert.Equal(t, StateMeasuring, c.State())
	snap = process(t, c)
	assert.Equal(t, StateFitted, snap.State)
	assert.False(t, snap.Expanded)
	assert.Equal(t, truncated, snap.Text())
}

func TestExpandIgnoredWhenNotTruncated(t *testing.T) {
	c, _ := newComponent(t)
	c.Attach(fit.Box{Width: 30, Height: 20}, []fit.Node{fit.Text("short")})
	first := process(t, c)

	require.NoError(t, c.Expand())
	snap := process(t, c)
	assert.Equal(t, StateFitted, snap.State)
	assert.False(t, snap.Expanded)
	assert.Equal(t, first.Seq, snap.Seq)
}

func TestCollapseWithoutExpandIsNoop(t *testing.T) {
	c, _ := newComponent(t)
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	first := process(t, c)

	require.NoError(t, c.Collapse())
	assert.Equal(t, StateFitted, c.State())
	snap := process(t, c)
	assert.Equal(t, first.Seq, snap.Seq)
}

func TestResizeRestoresContent(t *testing.T) {
	c, _ := newComponent(t)
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	require.True(t, process(t, c).Result.Truncated)

	require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 100}))
	snap := process(t, c)
	assert.False(t, snap.Result.Truncated)
	assert.Equal(t, lorem, snap.Text())
	assert.Equal(t, fit.Box{Width: 30, Height: 100}, snap.Box)
}

func TestResizeWhileExpandedRefits(t *testing.T) {
	c, _ := newComponent(t)
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	process(t, c)
	require.NoError(t, c.Expand())
	require.Equal(t, StateExpanded, process(t, c).State)

	require.NoError(t, c.Resize(fit.Box{Width: 40, Height: 20}))
	assert.Equal(t, StateMeasuring, c.State())
	snap := process(t, c)
	assert.Equal(t, StateFitted, snap.State)
	assert.False(t, snap.Expanded)
}

func TestTriggersCoalesce(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c, _ := newComponent(t, WithMetrics(metrics))

	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	require.NoError(t, c.Resize(fit.Box{Width: 10, Height: 10}))
	require.NoError(t, c.Mutate([]fit.Node{fit.Text("abc")}))
	require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 20}))

	snap := process(t, c)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, "abc", snap.Text())
	assert.Equal(t, fit.Box{Width: 30, Height: 20}, snap.Box)
	assert.False(t, c.Pending())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.passes.WithLabelValues(outcomeFits)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.triggers.WithLabelValues("resize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.triggers.WithLabelValues("attach")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.triggers.WithLabelValues("mutate")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.probes))
}

func TestMutateExpandMergeKeepsLastIntent(t *testing.T) {
	c, _ := newComponent(t)
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	process(t, c)

	// 展开后紧跟的内容变化取消展开
	require.NoError(t, c.Expand())
	require.NoError(t, c.Mutate(loremContent()))
	snap := process(t, c)
	assert.Equal(t, StateFitted, snap.State)
	assert.False(t, snap.Expanded)

	// 内容变化后的展开在重新计算完成后生效
	require.NoError(t, c.Mutate(loremContent()))
	require.NoError(t, c.Expand())
	snap = process(t, c)
	assert.Equal(t, StateExpanded, snap.State)
	assert.True(t, snap.Expanded)
}

// blocking 在第一次测量时阻塞，直到计算被取消。
type blocking struct {
	once    sync.Once
	started chan struct{}
	inner   fit.Measurer
}

func (b *blocking) Measure(ctx context.Context, content []fit.Node, c fit.Candidate) (float64, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.started)
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return b.inner.Measure(ctx, content, c)
}

func TestEnqueueSupersedesInFlightPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := &cells{}
	b := &blocking{started: make(chan struct{})}
	c := New("teaser", func(box fit.Box) fit.Measurer {
		b.inner = m.factory(box)
		return b
	}, WithMetrics(metrics))

	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := c.Process(context.Background())
		done <- snap
	}()

	<-b.started
	require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 100}))

	var superseded Snapshot
	select {
	case superseded = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight pass was not canceled")
	}
	assert.Equal(t, uint64(0), superseded.Seq)
	assert.True(t, c.Pending())

	snap := process(t, c)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Equal(t, fit.Box{Width: 30, Height: 100}, snap.Box)
	assert.False(t, snap.Result.Truncated)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.passes.WithLabelValues(outcomeSuperseded)))
}

// 重新计算进行中到达的展开或收起不能丢掉尚未完成的尺寸变化。
func TestExpandOrCollapseDuringResizeKeepsResize(t *testing.T) {
	cases := []struct {
		name    string
		trigger func(*Component) error
	}{
		{"expand", (*Component).Expand},
		{"collapse", (*Component).Collapse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &cells{}
			b := &blocking{started: make(chan struct{})}
			c := New("teaser", func(box fit.Box) fit.Measurer {
				if box.Height == 1000 {
					b.inner = m.factory(box)
					return b
				}
				return m.factory(box)
			})
			c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
			first := process(t, c)
			require.True(t, first.Result.Truncated)

			require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 1000}))
			done := make(chan struct{})
			go func() {
				c.Process(context.Background())
				close(done)
			}()
			<-b.started
			require.NoError(t, tc.trigger(c))
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("in-flight pass was not canceled")
			}
			require.True(t, c.Pending())
			assert.Equal(t, StateMeasuring, c.State())

			snap := process(t, c)
			assert.Equal(t, fit.Box{Width: 30, Height: 1000}, snap.Box)
			assert.False(t, snap.Result.Truncated)
			assert.False(t, snap.Expanded)
			assert.Equal(t, StateFitted, snap.State)
			assert.False(t, c.Pending())
		})
	}
}

func TestFailureKeepsPreviousSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c, m := newComponent(t, WithMetrics(metrics))
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	good := process(t, c)
	require.NoError(t, good.Err)

	boom := errors.New("layout engine gone")
	m.setFail(boom)
	require.NoError(t, c.Mutate([]fit.Node{fit.Text("other")}))
	snap := process(t, c)

	require.Error(t, snap.Err)
	assert.True(t, errors.Is(snap.Err, fit.ErrMeasurement))
	assert.True(t, errors.Is(snap.Err, boom))
	assert.Equal(t, StateFitted, snap.State)
	assert.Equal(t, good.Content, snap.Content)
	assert.Equal(t, good.Result, snap.Result)
	assert.Equal(t, good.Text(), snap.Text())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.passes.WithLabelValues(outcomeError)))

	// 恢复后重新计算使用最新内容
	m.setFail(nil)
	require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 20}))
	snap = process(t, c)
	require.NoError(t, snap.Err)
	assert.Equal(t, "other", snap.Text())
}

func TestFirstFailureStaysMeasuring(t *testing.T) {
	c, m := newComponent(t)
	m.setFail(errors.New("boom"))
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())

	snap := process(t, c)
	require.Error(t, snap.Err)
	assert.Equal(t, StateMeasuring, snap.State)

	require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 30}))
	snap = process(t, c)
	require.Error(t, snap.Err)
	assert.Equal(t, StateMeasuring, snap.State)
	assert.Equal(t, uint64(2), snap.Seq)
}

func TestDetachedTriggers(t *testing.T) {
	c, _ := newComponent(t)
	assert.ErrorIs(t, c.Resize(fit.Box{Width: 1, Height: 1}), ErrDetached)
	assert.ErrorIs(t, c.Mutate(nil), ErrDetached)
	assert.ErrorIs(t, c.Expand(), ErrDetached)
	assert.ErrorIs(t, c.Collapse(), ErrDetached)

	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	c.Detach()
	assert.Equal(t, StateDetached, c.State())
	assert.False(t, c.Pending())
	_, ok := c.Process(context.Background())
	assert.False(t, ok)
}

func TestSubscribers(t *testing.T) {
	c, _ := newComponent(t)
	var got []uint64
	unsubscribe := c.Subscribe(func(s Snapshot) { got = append(got, s.Seq) })

	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	process(t, c)
	require.NoError(t, c.Expand())
	process(t, c)
	unsubscribe()
	require.NoError(t, c.Collapse())
	process(t, c)

	assert.Equal(t, []uint64{1, 2}, got)
}

func TestRun(t *testing.T) {
	c, _ := newComponent(t)
	snaps := make(chan Snapshot, 8)
	c.Subscribe(func(s Snapshot) { snaps <- s })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	select {
	case s := <-snaps:
		assert.True(t, s.Result.Truncated)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not process the attach")
	}

	require.NoError(t, c.Resize(fit.Box{Width: 30, Height: 100}))
	select {
	case s := <-snaps:
		assert.False(t, s.Result.Truncated)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not process the resize")
	}

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestFitOptionsApply(t *testing.T) {
	c, _ := newComponent(t, WithFitOptions(fit.Options{Ellipsis: " [...]"}))
	c.Attach(fit.Box{Width: 30, Height: 20}, loremContent())
	snap := process(t, c)
	assert.True(t, strings.HasSuffix(snap.Text(), " [...]"))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "detached", StateDetached.String())
	assert.Equal(t, "measuring", StateMeasuring.String())
	assert.Equal(t, "fitted", StateFitted.String())
	assert.Equal(t, "expanded", StateExpanded.String())
	assert.Equal(t, "collapse", TriggerCollapse.String())
}
