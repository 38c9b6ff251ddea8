// Package reactive runs compiled page descriptors. A Context owns every
// scope and value of one page in flat arenas; Scope and Value are small
// handles into them. Values are memoized per cycle: a value is current when
// its stamp equals the context cycle, and reading a stale value recomputes
// it. Dependency edges come from each value's refs, evaluated at link time,
// and changes propagate along them to dependents.
package reactive

import (
	"fmt"
	"log"
	"slices"

	"github.com/jward/pagelogic/internal/descriptor"
	"github.com/jward/pagelogic/internal/expr"
)

// Context holds the live state of one page. It is not safe for concurrent
// use; calls may re-enter it from value callbacks.
type Context struct {
	cycle        int
	refreshLevel int
	pushLevel    int

	scopes  []scopeSlot
	values  []valueSlot
	byID    map[int]int // descriptor scope id -> arena index
	globals map[string]any
	logf    func(format string, args ...any)

	evals int
}

type scopeSlot struct {
	id       int
	name     string
	isolate  bool
	parent   int // -1 for the root
	children []int
	values   map[string]int
	keys     []string
}

type valueSlot struct {
	key   string
	scope int
	exp   expr.Node
	refs  []expr.Node
	cb    func(any) any
	v1    any // raw result
	v2    any // result after cb
	cycle int // -1 until first computed
	err   error
	src   map[int]struct{}
	dst   map[int]struct{}
}

// Option configures a Context.
type Option func(*Context)

// WithGlobals adds global bindings visible to every expression. Builtins
// are always present and may be overridden.
func WithGlobals(globals map[string]any) Option {
	return func(c *Context) {
		for k, v := range globals {
			c.globals[k] = v
		}
	}
}

// WithLogger sets the logger used for evaluation and link failures.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(c *Context) {
		if logf != nil {
			c.logf = logf
		}
	}
}

// New loads a descriptor into a fresh context. No value is computed until
// Refresh or a read.
func New(root *descriptor.Scope, opts ...Option) *Context {
	c := &Context{byID: map[int]int{}, logf: log.Printf}
	c.globals = map[string]any{}
	for _, opt := range opts {
		opt(c)
	}
	for k, v := range expr.Builtins(c.logf) {
		if _, ok := c.globals[k]; !ok {
			c.globals[k] = v
		}
	}
	c.load(root, -1)
	return c
}

func (c *Context) load(d *descriptor.Scope, parent int) int {
	idx := len(c.scopes)
	c.scopes = append(c.scopes, scopeSlot{id: d.ID, name: d.Name, isolate: d.Isolate, parent: parent, values: map[string]int{}})
	c.byID[d.ID] = idx
	for _, k := range d.Keys() {
		dv := d.Values[k]
		c.scopes[idx].values[k] = len(c.values)
		c.scopes[idx].keys = append(c.scopes[idx].keys, k)
		c.values = append(c.values, valueSlot{
			key: k, scope: idx, exp: dv.Exp, refs: dv.Refs, cycle: -1, v1: expr.Undefined, v2: expr.Undefined,
			src: map[int]struct{}{}, dst: map[int]struct{}{},
		})
	}
	for _, child := range d.Children {
		ci := c.load(child, idx)
		c.scopes[idx].children = append(c.scopes[idx].children, ci)
	}
	return idx
}

// Root returns the root scope.
func (c *Context) Root() Scope { return Scope{ctx: c, idx: 0} }

// Scope returns the scope with the given compile-time id.
func (c *Context) Scope(id int) (Scope, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Scope{}, false
	}
	return Scope{ctx: c, idx: idx}, true
}

// Cycle returns the current cycle.
func (c *Context) Cycle() int { return c.cycle }

// Evaluations returns how many times any value expression was evaluated.
func (c *Context) Evaluations() int { return c.evals }

// Refresh recomputes the whole page.
func (c *Context) Refresh() { c.RefreshScope(c.Root()) }

// RefreshScope advances the cycle and rebuilds the subtree rooted at s in
// three phases: every value is unlinked, then every value is linked, then
// every value is read. Dependents outside the subtree are read last.
func (c *Context) RefreshScope(s Scope) {
	if s.ctx != c {
		return
	}
	var ids []int
	c.walk(s.idx, func(si int) {
		for _, k := range c.scopes[si].keys {
			ids = append(ids, c.scopes[si].values[k])
		}
	})
	inside := make(map[int]bool, len(ids))
	for _, id := range ids {
		inside[id] = true
	}

	c.refreshLevel++
	c.cycle++
	for _, id := range ids {
		c.unlink(id)
	}
	for _, id := range ids {
		c.link(id)
	}
	for _, id := range ids {
		c.get(id)
	}
	c.refreshLevel--

	var outside []int
	for _, id := range ids {
		for d := range c.values[id].dst {
			if !inside[d] {
				outside = append(outside, d)
			}
		}
	}
	slices.Sort(outside)
	for _, id := range slices.Compact(outside) {
		c.get(id)
	}
}

func (c *Context) walk(si int, fn func(int)) {
	fn(si)
	for _, ci := range c.scopes[si].children {
		c.walk(ci, fn)
	}
}

// get returns the current result of value id, recomputing it when stale.
func (c *Context) get(id int) any {
	if c.values[id].cycle < c.cycle {
		c.update(id)
	}
	return c.values[id].v2
}

// update stamps and recomputes value id. A failed evaluation is logged and
// leaves the previous result in place.
func (c *Context) update(id int) {
	v := &c.values[id]
	first := v.cycle < 0
	v.cycle = c.cycle
	c.evals++
	raw, err := c.eval(v.exp, v.scope)
	if err != nil {
		v.err = err
		c.logf("reactive: scope %d value %s: %v", c.scopes[v.scope].id, v.key, err)
		return
	}
	v.err = nil
	if !first && !expr.Changed(v.v1, raw) {
		return
	}
	c.apply(id, raw)
	if c.refreshLevel == 0 {
		c.propagate(id)
	}
}

func (c *Context) apply(id int, raw any) {
	v := &c.values[id]
	v.v1 = raw
	if v.cb == nil {
		v.v2 = raw
		return
	}
	v.v2 = v.cb(raw)
}

// set replaces the formula of value id with a constant.
func (c *Context) set(id int, x any) {
	v := &c.values[id]
	first := v.cycle < 0
	v.exp = &expr.Literal{Value: x}
	v.cycle = c.cycle
	v.err = nil
	if !first && !expr.Changed(v.v1, x) {
		return
	}
	c.apply(id, x)
	c.propagate(id)
}

// propagate reads every dependent of value id. The outermost call advances
// the cycle so dependents recompute; the source itself stays current.
func (c *Context) propagate(id int) {
	if c.pushLevel == 0 {
		c.cycle++
		c.values[id].cycle = c.cycle
	}
	c.pushLevel++
	defer func() { c.pushLevel-- }()
	for _, d := range sortedIDs(c.values[id].dst) {
		c.get(d)
	}
}

func (c *Context) eval(n expr.Node, si int) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return expr.Eval(n, Scope{ctx: c, idx: si}, c.globals)
}

// link evaluates the refs of value id and records an edge to each upstream
// value. A ref that yields the value itself is retried from the parent
// scope.
func (c *Context) link(id int) {
	v := c.values[id]
	for _, ref := range v.refs {
		target, ok := c.resolveRef(ref, v.scope)
		if ok && target == id {
			// A function reading its own name depends on the outer binding,
			// if there is one.
			p := c.scopes[v.scope].parent
			if p < 0 || c.scopes[v.scope].isolate {
				continue
			}
			if target, ok = c.resolveRef(ref, p); !ok {
				continue
			}
		}
		if !ok || target == id {
			c.logf("reactive: scope %d value %s: ref %s does not reach a value", c.scopes[v.scope].id, v.key, expr.Format(ref))
			continue
		}
		c.values[target].dst[id] = struct{}{}
		c.values[id].src[target] = struct{}{}
	}
}

func (c *Context) resolveRef(ref expr.Node, si int) (int, bool) {
	res, err := c.eval(ref, si)
	if err != nil {
		return 0, false
	}
	val, ok := res.(Value)
	if !ok || val.ctx != c {
		return 0, false
	}
	return val.id, true
}

// unlink removes every edge into value id.
func (c *Context) unlink(id int) {
	for s := range c.values[id].src {
		delete(c.values[s].dst, id)
	}
	clear(c.values[id].src)
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
