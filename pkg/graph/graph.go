package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Followup edge keys with reserved meaning. Any other key is matched against
// the classified intent keyword (or an extracted entity value).
const (
	EdgeAuto    = ""        // advance without user input
	EdgeAny     = "any"     // wildcard
	EdgeAnyFile = "anyFile" // wildcard, message must carry a file
	EdgeSkip    = "skip"    // silently replace the node before rendering
)

// Reserved root keywords.
const (
	RootDefault      = "default"  // catch-all fallback node
	RootContinuation = "0"        // intent-free continuation reachable from root
	RootAnyFile      = "anyFile"  // file catch-all at root
	escalationPrefix = "defaultX" // defaultX<N>: escalation fallback, N repeats
)

// NodeID addresses a node inside a Graph's arena. The graph may contain true
// cycles (self-loops via auto/any edges), so edges are ids, not pointers.
type NodeID int

// None is the absent node: a session holding None is parked at the root.
const None NodeID = -1

// ResponseKind distinguishes plain text from interactive/button payloads.
type ResponseKind string

const (
	KindText        ResponseKind = "text"
	KindInteractive ResponseKind = "interactive"
)

// Node is one point of the dialogue graph. Immutable after Build.
type Node struct {
	ID                  NodeID
	Keyword             string
	Responses           []string
	ErrorMessage        string
	Followups           map[string]NodeID
	ExpectsFile         bool
	TriggeredFunctionID string
	NLUModelID          string
	FileURL             string
	Kind                ResponseKind
}

// Terminal reports whether the node has no outgoing edges; reaching it ends
// the conversation.
func (n *Node) Terminal() bool {
	return len(n.Followups) == 0
}

// Followup resolves one outgoing edge.
func (n *Node) Followup(key string) (NodeID, bool) {
	id, ok := n.Followups[key]
	return id, ok
}

// IsEscalation reports whether the node is a defaultX<N> escalation fallback.
func (n *Node) IsEscalation() bool {
	return strings.HasPrefix(n.Keyword, escalationPrefix)
}

// Graph is the immutable per-bot dialogue model: an arena of nodes plus the
// root lookup table keyed by intent keyword. Safe for concurrent readers.
type Graph struct {
	nodes []Node
	roots map[string]NodeID

	escalation NodeID // defaultX<N> node, None if not configured
	escalateAt int    // N
}

// Get returns the node for id, or nil for None / out-of-range ids.
func (g *Graph) Get(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return &g.nodes[id]
}

// Root resolves a top-level intent keyword. O(1).
func (g *Graph) Root(keyword string) (NodeID, bool) {
	id, ok := g.roots[keyword]
	return id, ok
}

// Default returns the catch-all root node.
func (g *Graph) Default() (NodeID, bool) {
	return g.Root(RootDefault)
}

// Continuation returns the intent-free continuation node, reachable from the
// root under the "0" (or empty) keyword.
func (g *Graph) Continuation() (NodeID, bool) {
	if id, ok := g.Root(RootContinuation); ok {
		return id, true
	}
	return g.Root(EdgeAuto)
}

// Escalation returns the defaultX<N> node and its repeat threshold N.
func (g *Graph) Escalation() (NodeID, int, bool) {
	if g.escalation == None {
		return None, 0, false
	}
	return g.escalation, g.escalateAt, true
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int { return len(g.nodes) }

// Builder assembles a Graph. Not safe for concurrent use; Build freezes the
// result.
type Builder struct {
	nodes []Node
	roots map[string]NodeID
	err   error
}

func NewBuilder() *Builder {
	return &Builder{roots: make(map[string]NodeID)}
}

// AddNode appends a node to the arena and returns its id. The node's
// Followups may be filled in later via Connect, so forward and cyclic
// references are fine.
func (b *Builder) AddNode(n Node) NodeID {
	id := NodeID(len(b.nodes))
	n.ID = id
	if n.Followups == nil {
		n.Followups = make(map[string]NodeID)
	}
	if n.Kind == "" {
		n.Kind = KindText
	}
	b.nodes = append(b.nodes, n)
	return id
}

// Connect adds an outgoing edge. Duplicate keys on one node are a modeling
// error.
func (b *Builder) Connect(from NodeID, key string, to NodeID) {
	if b.err != nil {
		return
	}
	if from < 0 || int(from) >= len(b.nodes) || to < 0 || int(to) >= len(b.nodes) {
		b.err = fmt.Errorf("connect %d -[%q]-> %d: node out of range", from, key, to)
		return
	}
	node := &b.nodes[from]
	if _, dup := node.Followups[key]; dup {
		b.err = fmt.Errorf("node %q: duplicate followup key %q", node.Keyword, key)
		return
	}
	node.Followups[key] = to
}

// AddRoot registers a node under its own keyword in the root lookup table.
func (b *Builder) AddRoot(id NodeID) {
	if b.err != nil {
		return
	}
	if id < 0 || int(id) >= len(b.nodes) {
		b.err = fmt.Errorf("root node %d out of range", id)
		return
	}
	keyword := b.nodes[id].Keyword
	key := keyword
	if strings.HasPrefix(keyword, escalationPrefix) {
		key = escalationPrefix
	}
	if _, dup := b.roots[key]; dup {
		b.err = fmt.Errorf("duplicate root keyword %q", key)
		return
	}
	b.roots[key] = id
}

// Build freezes the graph. The defaultX<N> threshold is parsed here so a
// malformed escalation keyword fails at bot load, not mid-conversation.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	g := &Graph{
		nodes:      b.nodes,
		roots:      b.roots,
		escalation: None,
	}
	if id, ok := b.roots[escalationPrefix]; ok {
		keyword := b.nodes[id].Keyword
		n, err := strconv.Atoi(strings.TrimPrefix(keyword, escalationPrefix))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("escalation node %q: suffix must be a positive repeat count", keyword)
		}
		g.escalation = id
		g.escalateAt = n
	}
	return g, nil
}
