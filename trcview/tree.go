// Package trcview assembles decoded trace records into per-thread trees, for
// display by an observer.
package trcview

import (
	"errors"
	"fmt"
)

// Event is a single record within a thread, without the thread ID.
type Event struct {
	Timestamp uint64 `json:"timestamp" cbor:"timestamp"`
	Level     uint64 `json:"level"     cbor:"level"`
	Message   string `json:"message"   cbor:"message"`
}

// None is the index used for absent links between nodes.
const None = -1

// Node is an event plus its links within a tree. Links are node indexes, or
// None.
type Node struct {
	Event

	// Parent is the nearest preceding node with a lower level.
	Parent int

	// PrevSibling is the nearest preceding node with the same parent.
	PrevSibling int

	// NextSibling is the nearest following node with the same parent.
	NextSibling int

	// LastChild is the last node which has this node as its parent.
	LastChild int
}

// ErrInvalidLevel is returned when an event's level can't be placed in the
// tree, typically because it's lower than the level of the first event.
var ErrInvalidLevel = errors.New("invalid trace level")

// Tree is the events of one thread, in arrival order, linked according to
// their levels. The zero value is an empty tree. A tree is not safe for
// concurrent use.
type Tree struct {
	nodes []Node
	stack []int  // open nodes, outermost first
	level uint64 // level of the top of the stack
}

// NewTree builds a tree from the events, in order.
func NewTree(events []Event) (*Tree, error) {
	t := &Tree{nodes: make([]Node, 0, len(events))}
	for i, e := range events {
		if err := t.Add(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return t, nil
}

// Add appends an event to the end of the tree. The first event establishes
// the base level. An event with a higher level than the last becomes its
// child. An event with the same level becomes its next sibling. An event with
// a lower level closes open nodes until it finds one at or below its level.
// If no such node exists, Add returns ErrInvalidLevel, and the tree is
// unchanged.
func (t *Tree) Add(e Event) error {
	if len(t.nodes) == 0 {
		t.stack = append(t.stack[:0], 0)
		t.level = e.Level
		t.push(Node{Event: e, Parent: None, PrevSibling: None})
		return nil
	}

	// Find how many open nodes stay open, without modifying the stack, so
	// that an invalid level leaves the tree intact.
	depth, level := len(t.stack), t.level
	for e.Level < level {
		depth--
		if depth <= 0 {
			return fmt.Errorf("%w: level %d is below the base level", ErrInvalidLevel, e.Level)
		}
		level = t.nodes[t.stack[depth-1]].Level
	}
	t.stack, t.level = t.stack[:depth], level

	top := t.stack[len(t.stack)-1]
	switch {
	case e.Level > t.level:
		t.stack = append(t.stack, len(t.nodes))
		t.level = e.Level
		t.push(Node{Event: e, Parent: top, PrevSibling: None})
	default:
		t.stack[len(t.stack)-1] = len(t.nodes)
		t.push(Node{Event: e, Parent: t.nodes[top].Parent, PrevSibling: top})
	}
	return nil
}

func (t *Tree) push(n Node) {
	idx := len(t.nodes)
	n.NextSibling, n.LastChild = None, None
	if n.Parent != None {
		t.nodes[n.Parent].LastChild = idx
	}
	if n.PrevSibling != None {
		t.nodes[n.PrevSibling].NextSibling = idx
	}
	t.nodes = append(t.nodes, n)
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at idx.
func (t *Tree) Node(idx int) (Node, bool) {
	if idx < 0 || idx >= len(t.nodes) {
		return Node{}, false
	}
	return t.nodes[idx], true
}

// Events returns the events of the tree, in order.
func (t *Tree) Events() []Event {
	events := make([]Event, len(t.nodes))
	for i := range t.nodes {
		events[i] = t.nodes[i].Event
	}
	return events
}

// Context returns the indexes of the ancestors of the node at idx, up to limit
// of them, outermost first. The node itself is not included.
func (t *Tree) Context(idx, limit int) []int {
	var ancestors []int
	for len(ancestors) < limit {
		n, ok := t.Node(idx)
		if !ok || n.Parent == None {
			break
		}
		ancestors = append(ancestors, n.Parent)
		idx = n.Parent
	}
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}
	return ancestors
}

// Depth returns the number of ancestors of the node at idx.
func (t *Tree) Depth(idx int) int {
	var depth int
	for {
		n, ok := t.Node(idx)
		if !ok || n.Parent == None {
			return depth
		}
		depth++
		idx = n.Parent
	}
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	return &Tree{
		nodes: append([]Node(nil), t.nodes...),
		stack: append([]int(nil), t.stack...),
		level: t.level,
	}
}
