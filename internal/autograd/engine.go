package autograd

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ember-ml/ember/internal/tensor"
)

// Engine executes backward passes: starting from root edges it counts each
// node's dependencies, then applies nodes whose gradients have all arrived,
// propagating results along next edges until the graph is exhausted.
//
// An Engine is safe for concurrent use; every Execute call builds an
// independent task, so re-entrant backward calls (a backward launched from
// inside a Function's Apply) simply run as their own task.
type Engine struct {
	backend tensor.Backend
	cfg     Config
}

// NewEngine builds an engine over a kernel backend.
func NewEngine(backend tensor.Backend, cfg Config) *Engine {
	return &Engine{backend: backend, cfg: cfg}
}

// Backend returns the kernel backend gradients are computed with.
func (e *Engine) Backend() tensor.Backend {
	return e.backend
}

// nodeState is one Function's place in a running task: the gradient buffer
// per output slot and the count of edges that still have to deliver into it.
type nodeState struct {
	fn      Function
	inputs  []*Variable
	pending int
}

// readyHeap orders runnable nodes by descending sequence number, so the
// most recently created parts of the graph unwind first.
type readyHeap []*nodeState

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i].fn.SequenceNr() > h[j].fn.SequenceNr() }
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) { *h = append(*h, x.(*nodeState)) }
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// graphTask is the state of one Execute call.
type graphTask struct {
	id        uuid.UUID
	be        tensor.Backend
	keepGraph bool

	mu          sync.Mutex
	cond        *sync.Cond
	nodes       map[Function]*nodeState
	ready       readyHeap
	outstanding int
	err         error
}

// Execute runs a backward pass from the given root edges, seeding each with
// the corresponding gradient. With keepGraph false every applied node's
// saved state is released, so a second pass over the same graph fails; with
// createGraph true the backward computation itself records a graph, enabling
// higher-order gradients.
func (e *Engine) Execute(roots []Edge, seeds []*Variable, keepGraph, createGraph bool) error {
	if len(roots) == 0 {
		return fmt.Errorf("%w: backward with no roots", tensor.ErrInvalidArgument)
	}
	if len(roots) != len(seeds) {
		return fmt.Errorf("%w: got %d roots but %d seed gradients",
			tensor.ErrInvalidArgument, len(roots), len(seeds))
	}
	for _, r := range roots {
		if !r.IsValid() {
			return fmt.Errorf("%w: invalid root edge", tensor.ErrLogic)
		}
	}

	if !createGraph {
		restore := EnterNoGrad()
		defer restore()
	}

	t := &graphTask{
		id:        uuid.New(),
		be:        e.backend,
		keepGraph: keepGraph,
	}
	t.cond = sync.NewCond(&t.mu)
	t.nodes = e.countDependencies(roots)
	t.outstanding = len(t.nodes)

	for i, r := range roots {
		if err := t.deliver(r, seeds[i]); err != nil {
			return err
		}
	}
	for _, st := range t.nodes {
		if st.pending == 0 {
			heap.Push(&t.ready, st)
		}
	}

	workers := e.cfg.NumWorkers
	if workers <= 0 {
		workers = 1
	}
	if e.cfg.Deterministic || len(t.nodes) < e.cfg.MinGraphSize {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			t.run()
		}()
	}
	wg.Wait()

	return t.err
}

// countDependencies walks the graph reachable from the roots and records,
// per node, how many in-graph edges point at it.
func (e *Engine) countDependencies(roots []Edge) map[Function]*nodeState {
	nodes := make(map[Function]*nodeState)
	var stack []Function
	visit := func(fn Function) *nodeState {
		st, ok := nodes[fn]
		if !ok {
			st = &nodeState{fn: fn, inputs: make([]*Variable, fn.NumOutputs())}
			nodes[fn] = st
			stack = append(stack, fn)
		}
		return st
	}
	for _, r := range roots {
		visit(r.Fn)
	}
	for len(stack) > 0 {
		fn := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, edge := range fn.NextEdges() {
			if !edge.IsValid() {
				continue
			}
			visit(edge.Fn).pending++
		}
	}
	return nodes
}

// deliver accumulates a gradient into the target node's input slot. Callers
// hold no lock during setup; workers call it under t.mu.
func (t *graphTask) deliver(edge Edge, g *Variable) error {
	st := t.nodes[edge.Fn]
	slot := edge.InputNr
	if g == nil {
		return nil
	}
	if st.inputs[slot] == nil {
		st.inputs[slot] = g
		return nil
	}
	// Two producers feed the same slot. Add allocates a fresh output, so
	// neither producer's buffer is mutated in place, and with grad mode on it
	// records the merge for higher-order passes.
	sum, err := Add(t.be, st.inputs[slot], g)
	if err != nil {
		return err
	}
	st.inputs[slot] = sum
	return nil
}

// run is one worker loop: pop the highest-sequence ready node, apply it,
// route its outputs, repeat until the task drains or fails.
func (t *graphTask) run() {
	t.mu.Lock()
	for {
		for len(t.ready) == 0 && t.outstanding > 0 && t.err == nil {
			t.cond.Wait()
		}
		if t.outstanding == 0 || t.err != nil {
			t.mu.Unlock()
			t.cond.Broadcast()
			return
		}
		st := heap.Pop(&t.ready).(*nodeState)
		t.mu.Unlock()

		outputs, err := t.apply(st)

		t.mu.Lock()
		if err != nil {
			if t.err == nil {
				t.err = fmt.Errorf("backward task %s: %s: %w", t.id, st.fn.Name(), err)
			}
		} else {
			for i, edge := range st.fn.NextEdges() {
				if !edge.IsValid() || i >= len(outputs) {
					continue
				}
				if derr := t.deliver(edge, outputs[i]); derr != nil {
					if t.err == nil {
						t.err = fmt.Errorf("backward task %s: %s: %w", t.id, st.fn.Name(), derr)
					}
					break
				}
				next := t.nodes[edge.Fn]
				next.pending--
				if next.pending == 0 {
					heap.Push(&t.ready, next)
				}
			}
		}
		t.outstanding--
		t.cond.Broadcast()
	}
}

func (t *graphTask) apply(st *nodeState) ([]*Variable, error) {
	fn := st.fn
	if fn.Released() {
		return nil, fmt.Errorf("%w: trying to backward through the graph a second time, "+
			"but the saved state has already been freed; specify keep_graph=true when "+
			"calling backward the first time", tensor.ErrLogic)
	}
	outputs, err := fn.Apply(t.be, st.inputs)
	if err != nil {
		return nil, err
	}
	if !t.keepGraph {
		fn.ReleaseSavedState()
	}
	if len(outputs) > len(fn.NextEdges()) {
		return nil, fmt.Errorf("%w: %s returned %d gradients for %d inputs",
			tensor.ErrLogic, fn.Name(), len(outputs), len(fn.NextEdges()))
	}
	return outputs, nil
}
