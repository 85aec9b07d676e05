package eval

import (
	"context"
	"fmt"

	"github.com/dsedov/penpal-studio/pkg/canvas"
	"github.com/dsedov/penpal-studio/pkg/graph"
	"github.com/dsedov/penpal-studio/pkg/ops"
	"github.com/dsedov/penpal-studio/pkg/registry"
)

// runLoop evaluates a loop node. The body is every node reachable from the
// loop's loopOut handle that also feeds the edge back into loopIn. Each
// iteration evaluates the body with a fresh memo while the loop node is
// pinned to the iteration's canvas; nodes outside the body are shared with
// the enclosing pass.
func (e *Evaluator) runLoop(ctx context.Context, n graph.Node, typ *registry.NodeType, in registry.Inputs, props registry.Properties) registry.Result {
	if typ.FeedbackHandle == "" {
		return registry.Fail(fmt.Sprintf("node type %q has no compute function", typ.Tag))
	}
	initial := in.Canvas(ops.LoopInitial)
	if initial == nil {
		initial = in.Primary()
	}
	if initial == nil {
		return registry.Fail("Loop requires an initial canvas input")
	}
	if e.loopRunning(n.ID) {
		return registry.Fail(fmt.Sprintf("cycle detected at node %s", n.ID))
	}

	var feedback *graph.Edge
	for _, edge := range e.g.Incoming(n.ID) {
		if typ.IsFeedback(edge) {
			feedback = &edge
			break
		}
	}
	current := initial.Clone()
	if feedback == nil || feedback.Source == n.ID {
		return loopResult(current, current)
	}

	body := e.loopBody(n.ID, feedback.Source)
	if !body[feedback.Source] {
		return registry.Fail(fmt.Sprintf("loop feedback source %s is not driven by the loop output", feedback.Source))
	}

	iterations := props.Int("iterations")
	offered := current
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return registry.Fail(fmt.Sprintf("evaluation cancelled: %v", err))
		}
		offered = current
		child := &Evaluator{
			g:        e.g,
			reg:      e.reg,
			log:      e.log,
			memo:     make(map[string]registry.Result),
			visiting: make(map[string]bool),
			parent:   e,
			body:     body,
			pinned:   map[string]registry.Result{n.ID: loopResult(offered, offered)},
		}
		res := child.Resolve(ctx, feedback.Source)
		if res.Failed() {
			return registry.Fail(fmt.Sprintf("loop body failed at iteration %d: %s", i+1, res.Err))
		}
		next := res.Output(feedback.SourceHandle)
		if next == nil {
			return registry.Fail(fmt.Sprintf("loop body produced no canvas at iteration %d", i+1))
		}
		current = next
	}
	e.log.Debug("loop finished", "node", n.ID, "iterations", iterations, "body", len(body))
	return loopResult(offered, current)
}

// loopRunning reports whether an enclosing iteration already has loop id
// pinned.
func (e *Evaluator) loopRunning(id string) bool {
	for p := e; p != nil; p = p.parent {
		if _, ok := p.pinned[id]; ok {
			return true
		}
	}
	return false
}

// loopBody returns the nodes downstream of the loop's loopOut handle that
// are also upstream of the feedback source. Neither walk crosses a feedback
// edge, so an enclosing loop never lands in a nested loop's body. The loop
// node itself is never part of its body.
func (e *Evaluator) loopBody(loopID, feedbackSource string) map[string]bool {
	var starts []string
	for _, edge := range e.g.Outgoing(loopID) {
		if edge.SourceHandle == ops.LoopOut && edge.Target != loopID {
			starts = append(starts, edge.Target)
		}
	}
	skip := func(edge graph.Edge) bool {
		return edge.Source == loopID || edge.Target == loopID || e.reg.IsFeedback(e.g, edge)
	}
	down := e.g.Downstream(starts, skip)
	up := e.g.Upstream([]string{feedbackSource}, skip)

	body := make(map[string]bool)
	for id := range down {
		if up[id] {
			body[id] = true
		}
	}
	return body
}

func loopResult(offered, final *canvas.Canvas) registry.Result {
	return registry.Result{
		Canvas: final,
		Outputs: map[string]*canvas.Canvas{
			ops.LoopOut:    offered,
			ops.LoopResult: final,
		},
	}
}
