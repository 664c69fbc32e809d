package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// End is the terminal pseudo-node.
const End = "__end__"

// NodeFunc does the work of one node.
type NodeFunc func(ctx context.Context, st *State) error

// Router picks the next node from the state.
type Router func(st *State) string

type conditional struct {
	router  Router
	targets map[string]struct{}
}

// Graph is a builder for a labeled DAG. It is not safe for concurrent
// modification; compile it once and share the result.
type Graph struct {
	entry     string
	errorNode string
	nodes     map[string]NodeFunc
	edges     map[string]string
	routers   map[string]conditional
	errs      []error
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   map[string]NodeFunc{},
		edges:   map[string]string{},
		routers: map[string]conditional{},
	}
}

// AddNode registers a node under label.
func (g *Graph) AddNode(label string, fn NodeFunc) *Graph {
	switch {
	case label == "" || label == End:
		g.errs = append(g.errs, fmt.Errorf("invalid node label %q", label))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has no function", label))
	default:
		if _, dup := g.nodes[label]; dup {
			g.errs = append(g.errs, fmt.Errorf("duplicate node %q", label))
		}
		g.nodes[label] = fn
	}
	return g
}

// AddEdge adds an unconditional edge.
func (g *Graph) AddEdge(from, to string) *Graph {
	if _, ok := g.routers[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has conditional edges", from))
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from a node with router. The router may only
// return one of targets; anything else is sent to the error node.
func (g *Graph) AddConditionalEdges(from string, router Router, targets ...string) *Graph {
	if _, ok := g.edges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an edge", from))
	}
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	g.routers[from] = conditional{router: router, targets: set}
	return g
}

// SetEntry sets the entry node.
func (g *Graph) SetEntry(label string) *Graph { g.entry = label; return g }

// SetErrorNode sets the node that receives unknown routes and node errors.
func (g *Graph) SetErrorNode(label string) *Graph { g.errorNode = label; return g }

// Compile validates the graph: the entry and error nodes exist, every edge
// target is a node or End, every node has a way out and there are no cycles.
func (g *Graph) Compile() (*Compiled, error) {
	errs := append([]error(nil), g.errs...)
	if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node %q not found", g.entry))
	}
	if _, ok := g.nodes[g.errorNode]; !ok {
		errs = append(errs, fmt.Errorf("error node %q not found", g.errorNode))
	}

	succ := map[string][]string{}
	for _, label := range g.labels() {
		to, hasEdge := g.edges[label]
		cond, hasCond := g.routers[label]
		switch {
		case hasEdge:
			succ[label] = []string{to}
		case hasCond:
			for t := range cond.targets {
				succ[label] = append(succ[label], t)
			}
			sort.Strings(succ[label])
		default:
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", label))
		}
		for _, t := range succ[label] {
			if _, ok := g.nodes[t]; !ok && t != End {
				errs = append(errs, fmt.Errorf("edge %s -> %s: unknown target", label, t))
			}
		}
	}
	for from := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
	}
	for from := range g.routers {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("conditional edges from unknown node %q", from))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cycle := findCycle(g.labels(), succ); cycle != "" {
		return nil, fmt.Errorf("graph has a cycle through %q", cycle)
	}

	c := &Compiled{
		entry:     g.entry,
		errorNode: g.errorNode,
		nodes:     make(map[string]NodeFunc, len(g.nodes)),
		edges:     make(map[string]string, len(g.edges)),
		routers:   make(map[string]conditional, len(g.routers)),
	}
	for k, v := range g.nodes {
		c.nodes[k] = v
	}
	for k, v := range g.edges {
		c.edges[k] = v
	}
	for k, v := range g.routers {
		c.routers[k] = v
	}
	return c, nil
}

func (g *Graph) labels() []string {
	out := make([]string, 0, len(g.nodes))
	for l := range g.nodes {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func findCycle(labels []string, succ map[string][]string) string {
	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}
	var visit func(string) string
	visit = func(n string) string {
		color[n] = grey
		for _, m := range succ[n] {
			switch color[m] {
			case grey:
				return m
			case white:
				if c := visit(m); c != "" {
					return c
				}
			}
		}
		color[n] = black
		return ""
	}
	for _, l := range labels {
		if color[l] == white {
			if c := visit(l); c != "" {
				return c
			}
		}
	}
	return ""
}

// Compiled is an immutable, validated graph. It is safe for concurrent
// invocations, each with its own State.
type Compiled struct {
	entry     string
	errorNode string
	nodes     map[string]NodeFunc
	edges     map[string]string
	routers   map[string]conditional
}

// Invoke runs the graph from the entry node until End. A node error or an
// unknown route sends the state to the error node once; an error from the
// error node itself is returned. A canceled context stops the walk between
// nodes.
func (c *Compiled) Invoke(ctx context.Context, st *State) error {
	current := c.entry
	for hops := 0; current != End; hops++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hops > len(c.nodes) {
			return fmt.Errorf("flow did not reach the end after %d nodes", hops)
		}

		if err := c.nodes[current](ctx, st); err != nil {
			if current == c.errorNode {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.Error = fmt.Sprintf("%s: %v", current, err)
			current = c.errorNode
			continue
		}
		current = c.next(current, st)
	}
	return nil
}

func (c *Compiled) next(current string, st *State) string {
	if to, ok := c.edges[current]; ok {
		return to
	}
	cond := c.routers[current]
	to := cond.router(st)
	if _, ok := cond.targets[to]; !ok {
		st.Error = fmt.Sprintf("unknown route %q from %s", to, current)
		return c.errorNode
	}
	return to
}
