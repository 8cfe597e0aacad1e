package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryNode is a node held by MemoryDriver.
type MemoryNode struct {
	ID    string
	Label string
	Props map[string]any
}

// MemoryEdge is a relationship held by MemoryDriver.
type MemoryEdge struct {
	Type  string
	From  string
	To    string
	Props map[string]any
}

type memGraph struct {
	nodes   map[string]*MemoryNode
	edges   map[string]*MemoryEdge
	created int
}

func newMemGraph() *memGraph {
	return &memGraph{
		nodes: make(map[string]*MemoryNode),
		edges: make(map[string]*MemoryEdge),
	}
}

// MemoryDriver is an in-process GraphDriver with the same MERGE semantics as the Cypher
// driver. Transactions are serialized and write in place; each keeps an undo log of the
// nodes and relationships it touched, replayed when the transaction function fails.
type MemoryDriver struct {
	mu    sync.Mutex
	graph *memGraph
}

// NewMemoryDriver returns an empty in-memory graph.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{graph: newMemGraph()}
}

func (m *MemoryDriver) ExecuteWrite(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newMemoryTx(m.graph)
	err := fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
	}
	return err
}

func (m *MemoryDriver) CreateIndices(ctx context.Context) error { return nil }

func (m *MemoryDriver) VerifyConnectivity(ctx context.Context) error { return ctx.Err() }

func (m *MemoryDriver) Provider() GraphProvider { return GraphProviderMemory }

func (m *MemoryDriver) Close(ctx context.Context) error { return nil }

// NodeCount returns the number of nodes with label, or of all nodes when label is "".
func (m *MemoryDriver) NodeCount(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, node := range m.graph.nodes {
		if label == "" || node.Label == label {
			n++
		}
	}
	return n
}

// EdgeCount returns the number of relationships of type, or of all relationships when
// relType is "".
func (m *MemoryDriver) EdgeCount(relType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.graph.edges {
		if relType == "" || e.Type == relType {
			n++
		}
	}
	return n
}

// Node returns a copy of the properties of the node addressed by ref.
func (m *MemoryDriver) Node(ref NodeRef) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.graph.nodes[nodeID(ref)]
	if !ok {
		return nil, false
	}
	return copyProps(node.Props), true
}

// Nodes returns copies of every node with label, ordered by id.
func (m *MemoryDriver) Nodes(label string) []MemoryNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MemoryNode
	for _, node := range m.graph.nodes {
		if label == "" || node.Label == label {
			out = append(out, MemoryNode{ID: node.ID, Label: node.Label, Props: copyProps(node.Props)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edge returns a copy of the properties of the relationship relType from -> to.
func (m *MemoryDriver) Edge(relType string, from, to NodeRef) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.graph.edges[edgeID(relType, nodeID(from), nodeID(to))]
	if !ok {
		return nil, false
	}
	return copyProps(e.Props), true
}

// HasEdge reports whether relationship relType from -> to exists.
func (m *MemoryDriver) HasEdge(relType string, from, to NodeRef) bool {
	_, ok := m.Edge(relType, from, to)
	return ok
}

// EdgesFrom returns the relationships of relType leaving the node addressed by from.
func (m *MemoryDriver) EdgesFrom(relType string, from NodeRef) []MemoryEdge {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := nodeID(from)
	var out []MemoryEdge
	for _, e := range m.graph.edges {
		if e.From == src && (relType == "" || e.Type == relType) {
			out = append(out, MemoryEdge{Type: e.Type, From: e.From, To: e.To, Props: copyProps(e.Props)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// LinkedNodes returns the nodes reached from "from" over relType.
func (m *MemoryDriver) LinkedNodes(relType string, from NodeRef) []MemoryNode {
	edges := m.EdgesFrom(relType, from)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryNode, 0, len(edges))
	for _, e := range edges {
		if n, ok := m.graph.nodes[e.To]; ok {
			out = append(out, MemoryNode{ID: n.ID, Label: n.Label, Props: copyProps(n.Props)})
		}
	}
	return out
}

// Snapshot renders the graph as sorted lines. Nodes created by CreateLinkedNode are
// rendered by label and properties without their uuid.
func (m *MemoryDriver) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lines []string
	for _, n := range m.graph.nodes {
		lines = append(lines, "node "+stableID(n)+" "+renderProps(n.Props, isCreatedID(n.ID)))
	}
	for _, e := range m.graph.edges {
		from, to := m.graph.nodes[e.From], m.graph.nodes[e.To]
		lines = append(lines, fmt.Sprintf("edge %s-[:%s]->%s %s", stableID(from), e.Type, stableID(to), renderProps(e.Props, false)))
	}
	sort.Strings(lines)
	return lines
}

// memoryTx records the prior state of every entry it touches; a nil entry
// means the node or relationship did not exist.
type memoryTx struct {
	graph    *memGraph
	nodeUndo map[string]*MemoryNode
	edgeUndo map[string]*MemoryEdge
	created  int
}

func newMemoryTx(g *memGraph) *memoryTx {
	return &memoryTx{
		graph:    g,
		nodeUndo: make(map[string]*MemoryNode),
		edgeUndo: make(map[string]*MemoryEdge),
		created:  g.created,
	}
}

func (t *memoryTx) touchNode(id string) {
	if _, seen := t.nodeUndo[id]; seen {
		return
	}
	var prev *MemoryNode
	if n, ok := t.graph.nodes[id]; ok {
		prev = &MemoryNode{ID: n.ID, Label: n.Label, Props: copyProps(n.Props)}
	}
	t.nodeUndo[id] = prev
}

func (t *memoryTx) touchEdge(id string) {
	if _, seen := t.edgeUndo[id]; seen {
		return
	}
	var prev *MemoryEdge
	if e, ok := t.graph.edges[id]; ok {
		prev = &MemoryEdge{Type: e.Type, From: e.From, To: e.To, Props: copyProps(e.Props)}
	}
	t.edgeUndo[id] = prev
}

func (t *memoryTx) rollback() {
	for id, prev := range t.edgeUndo {
		if prev == nil {
			delete(t.graph.edges, id)
		} else {
			t.graph.edges[id] = prev
		}
	}
	for id, prev := range t.nodeUndo {
		if prev == nil {
			delete(t.graph.nodes, id)
		} else {
			t.graph.nodes[id] = prev
		}
	}
	t.graph.created = t.created
}

func (t *memoryTx) MergeNode(ctx context.Context, w NodeWrite) error {
	if err := w.validate(); err != nil {
		return err
	}
	node := t.mergeNode(w.NodeRef)
	for k, v := range w.Set {
		if v == nil {
			delete(node.Props, k)
			continue
		}
		node.Props[k] = v
	}
	for k, v := range w.Coalesce {
		if _, ok := node.Props[k]; !ok && v != nil {
			node.Props[k] = v
		}
	}
	return ctx.Err()
}

func (t *memoryTx) MergeEdge(ctx context.Context, w EdgeWrite) error {
	if err := w.validate(); err != nil {
		return err
	}
	var from, to string
	if w.CreateEndpoints {
		from, to = t.mergeNode(w.From).ID, t.mergeNode(w.To).ID
	} else {
		from, to = nodeID(w.From), nodeID(w.To)
		if t.graph.nodes[from] == nil || t.graph.nodes[to] == nil {
			return ctx.Err()
		}
	}

	id := edgeID(w.Type, from, to)
	t.touchEdge(id)
	e, ok := t.graph.edges[id]
	if !ok {
		e = &MemoryEdge{Type: w.Type, From: from, To: to, Props: map[string]any{}}
		t.graph.edges[id] = e
	}
	for k, v := range w.Set {
		if v == nil {
			delete(e.Props, k)
			continue
		}
		e.Props[k] = v
	}
	return ctx.Err()
}

func (t *memoryTx) CreateLinkedNode(ctx context.Context, w LinkedNodeWrite) error {
	if err := w.validate(); err != nil {
		return err
	}
	from := nodeID(w.From)
	if t.graph.nodes[from] == nil {
		return ctx.Err()
	}
	t.graph.created++
	n := &MemoryNode{
		ID:    fmt.Sprintf("%s#%d", w.Label, t.graph.created),
		Label: w.Label,
		Props: map[string]any{},
	}
	for k, v := range w.Props {
		if v != nil {
			n.Props[k] = v
		}
	}
	eid := edgeID(w.Type, from, n.ID)
	t.touchNode(n.ID)
	t.touchEdge(eid)
	t.graph.nodes[n.ID] = n
	t.graph.edges[eid] = &MemoryEdge{Type: w.Type, From: from, To: n.ID, Props: map[string]any{}}
	return ctx.Err()
}

func (t *memoryTx) mergeNode(ref NodeRef) *MemoryNode {
	id := nodeID(ref)
	t.touchNode(id)
	if n, ok := t.graph.nodes[id]; ok {
		return n
	}
	n := &MemoryNode{ID: id, Label: ref.Label, Props: map[string]any{ref.KeyProp: ref.Key}}
	t.graph.nodes[id] = n
	return n
}

func nodeID(ref NodeRef) string {
	return ref.Label + "|" + ref.KeyProp + "=" + ref.Key
}

func edgeID(relType, from, to string) string {
	return from + " -[" + relType + "]-> " + to
}

func isCreatedID(id string) bool {
	return !strings.Contains(id, "|")
}

func stableID(n *MemoryNode) string {
	if n == nil {
		return "<nil>"
	}
	if isCreatedID(n.ID) {
		return "(" + n.Label + ")"
	}
	return "(" + n.ID + ")"
}

func renderProps(props map[string]any, skipUUID bool) string {
	keys := sortedKeys(props)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if skipUUID && k == "uuid" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
