// Package scheduler executes the dirty nodes of a plan on a fixed pool of workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/planner"
	"go.trai.ch/kiln/internal/engine/rules"
	"go.trai.ch/kiln/internal/engine/session"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Worker runs the build step of one node.
type Worker interface {
	Work(ctx context.Context, g *domain.Graph, id domain.NodeID) (rules.Result, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, g *domain.Graph, id domain.NodeID) (rules.Result, error)

// Work implements Worker.
func (f WorkerFunc) Work(ctx context.Context, g *domain.Graph, id domain.NodeID) (rules.Result, error) {
	return f(ctx, g, id)
}

// Scheduler manages the execution of nodes in a prepared plan.
type Scheduler struct {
	worker Worker
}

// NewScheduler creates a new Scheduler.
func NewScheduler(worker Worker) *Scheduler {
	return &Scheduler{worker: worker}
}

// RunBuild prunes fresh subtrees, queues every dirty node without pending
// dependencies and works until the graph is done or the build is aborted.
func (s *Scheduler) RunBuild(ctx context.Context, sess *session.Session, plan *planner.Plan) error {
	g := plan.Graph
	if root := g.Root(); root != domain.NoNode {
		g.Prune(root)
	}
	g.Arm()

	pool := NewPool(sess, s.worker, g)
	var names []string
	for n := range g.Nodes() {
		if n.IsDirty() && !n.IsPruned() {
			pool.AddTaskCount()
			names = append(names, n.Name())
			continue
		}
		if sess.Telemetry != nil && !n.Output.IsZero() {
			sess.Telemetry.Record(ctx, n.Name()).Complete(domain.OutcomeFresh, nil)
		}
	}
	if sess.Tracer != nil {
		sess.Tracer.EmitPlan(ctx, names)
	}

	for _, id := range g.Leaves() {
		pool.AddTask(id)
	}
	return pool.Work(ctx)
}

// Pool is the worker pool of one build. Workers share a single ready-queue;
// the worker that finishes a node pushes the subscribers it released.
type Pool struct {
	sess   *session.Session
	worker Worker
	g      *domain.Graph

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []domain.NodeID
	running  int
	total    int
	finished int
	built    int
	errs     error
}

// NewPool creates a pool working on g.
func NewPool(sess *session.Session, worker Worker, g *domain.Graph) *Pool {
	p := &Pool{sess: sess, worker: worker, g: g}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// AddTaskCount registers one more node the pool has to finish.
func (p *Pool) AddTaskCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
}

// AddTask queues a node that has no pending dependencies.
func (p *Pool) AddTask(id domain.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushLocked(id)
}

// Built returns the number of nodes whose work succeeded.
func (p *Pool) Built() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.built
}

// Work runs the pool until no node is queued or running.
// Cancelling ctx sets the session's abort flag: running commands complete,
// queued nodes are drained without running.
func (p *Pool) Work(ctx context.Context) error {
	if ctx.Err() != nil {
		p.sess.Abort()
	}
	stop := context.AfterFunc(ctx, p.sess.Abort)
	defer stop()

	var eg errgroup.Group
	for range p.sess.Jobs() {
		eg.Go(func() error {
			p.loop(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.errs != nil:
		return errors.Join(domain.ErrBuildFailed, p.errs)
	case ctx.Err() != nil:
		return errors.Join(domain.ErrBuildFailed, ctx.Err())
	case p.sess.Aborted():
		return domain.ErrBuildFailed
	case p.finished != p.total:
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrBuildFailed, "scheduler stalled"),
			"finished", p.finished), "total", p.total)
	}
	return nil
}

func (p *Pool) loop(ctx context.Context) {
	for {
		id, ok := p.next()
		if !ok {
			return
		}
		n := p.g.Node(id)

		if p.sess.Aborted() {
			p.skip(ctx, n)
			p.done(n, nil, false)
			continue
		}

		n.Transition(domain.StateReady, domain.StateRunning)
		res, err := p.execute(ctx, n)

		var ready []domain.NodeID
		if err != nil {
			p.sess.Abort()
			p.fail(res, err)
		} else {
			p.report(res)
			if !p.sess.Aborted() {
				ready = p.g.SendSubscribersNotice(id)
			}
		}
		p.done(n, ready, err == nil)
	}
}

// next blocks until a node is queued. It returns false once the queue is
// empty and no worker is running, since only running workers push.
func (p *Pool) next() (domain.NodeID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && p.running > 0 {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return domain.NoNode, false
	}
	id := p.queue[0]
	p.queue = p.queue[1:]
	p.running++
	return id, true
}

func (p *Pool) done(n *domain.Node, ready []domain.NodeID, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ready {
		p.pushLocked(id)
	}
	n.Finish()
	p.running--
	p.finished++
	if ok {
		p.built++
	}
	p.cond.Broadcast()
}

func (p *Pool) pushLocked(id domain.NodeID) {
	if !p.g.Node(id).Transition(domain.StateBlocked, domain.StateReady) {
		return
	}
	p.queue = append(p.queue, id)
	p.cond.Signal()
}

func (p *Pool) execute(ctx context.Context, n *domain.Node) (rules.Result, error) {
	ctx, span := p.startSpan(ctx, n)
	defer span.End()
	vertex := p.record(ctx, n)

	res, err := p.safeWork(context.WithoutCancel(ctx), n)
	if res.Output != "" {
		_, _ = io.WriteString(vertex.Stdout(), res.Output)
		_, _ = io.WriteString(span, res.Output)
	}
	if err != nil {
		span.RecordError(err)
		vertex.Complete(domain.OutcomeFailed, err)
		return res, err
	}
	vertex.Complete(domain.OutcomeBuilt, nil)
	return res, nil
}

func (p *Pool) safeWork(ctx context.Context, n *domain.Node) (res rules.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(zerr.Wrap(domain.ErrCommandFailed, "panic during build step"), "panic", fmt.Sprint(r))
		}
	}()
	return p.worker.Work(ctx, p.g, n.ID)
}

func (p *Pool) skip(ctx context.Context, n *domain.Node) {
	if p.sess.Telemetry == nil {
		return
	}
	v := p.sess.Telemetry.Record(ctx, n.Name())
	v.Log(domain.LogLevelDebug, "skipped after abort")
	v.Complete(domain.OutcomeSkipped, nil)
}

func (p *Pool) report(res rules.Result) {
	console := p.sess.Console()
	if p.sess.Verbose() && res.Description != "" {
		console.Printf("%s\n", res.Description)
	}
	if out := strings.TrimRight(res.Output, "\n"); out != "" {
		console.Printf("%s\n", out)
	}
}

func (p *Pool) fail(res rules.Result, err error) {
	var b strings.Builder
	if res.Description != "" {
		b.WriteString(res.Description)
		b.WriteString("\n")
	}
	if out := strings.TrimRight(res.Output, "\n"); out != "" {
		b.WriteString(out)
	} else {
		b.WriteString(err.Error())
	}
	p.sess.Console().Printf("%s\n", b.String())

	p.mu.Lock()
	p.errs = errors.Join(p.errs, err)
	p.mu.Unlock()
}

func (p *Pool) startSpan(ctx context.Context, n *domain.Node) (context.Context, ports.Span) {
	if p.sess.Tracer == nil {
		return ctx, noopSpan{}
	}
	return p.sess.Tracer.Start(ctx, n.Name(),
		ports.WithAttribute("node.output", n.Output.String()),
		ports.WithAttribute("node.kind", n.Rule.Kind()),
		ports.WithAttribute("node.target", n.Target),
	)
}

func (p *Pool) record(ctx context.Context, n *domain.Node) ports.Vertex {
	if p.sess.Telemetry == nil {
		return noopVertex{}
	}
	return p.sess.Telemetry.Record(ctx, n.Name())
}

type noopSpan struct{}

func (noopSpan) Write(b []byte) (int, error) { return len(b), nil }
func (noopSpan) End()                        {}
func (noopSpan) RecordError(error)           {}
func (noopSpan) SetAttribute(string, any)    {}

type noopVertex struct{}

func (noopVertex) Stdout() io.Writer              { return io.Discard }
func (noopVertex) Log(domain.LogLevel, string)    {}
func (noopVertex) Complete(domain.Outcome, error) {}
