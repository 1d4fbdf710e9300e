// Package tree builds the in-memory forest of one endpoint's containers and
// derives the name path of every node, which is the only identity that is
// portable between endpoints.
package tree

import (
	"fmt"
	"sort"

	"github.com/lherron/aiomigrate/internal/domain"
)

// Node is a container placed in its forest
type Node struct {
	Record   domain.ContainerRecord
	Path     domain.Path
	Parent   *Node
	Children []*Node
}

// ID returns the endpoint-local id of the node
func (n *Node) ID() int64 {
	return n.Record.ID
}

// Name returns the node name
func (n *Node) Name() string {
	return n.Record.Name
}

// Depth returns 0 for roots
func (n *Node) Depth() int {
	return len(n.Path) - 1
}

// Tree is the forest of containers of one kind on one endpoint
type Tree struct {
	Kind  domain.ContainerKind
	Roots []*Node

	byID   map[int64]*Node
	byPath map[string]*Node
}

// New returns an empty tree
func New(kind domain.ContainerKind) *Tree {
	return &Tree{
		Kind:   kind,
		byID:   make(map[int64]*Node),
		byPath: make(map[string]*Node),
	}
}

// Build links flat records into a forest and computes every node's path by
// walking down from the roots. Records that cannot be reached from a root
// are either orphans (missing parent) or part of a cycle; both are rejected.
func Build(kind domain.ContainerKind, records []domain.ContainerRecord) (*Tree, error) {
	t := New(kind)

	recs := make(map[int64]domain.ContainerRecord, len(records))
	for _, rec := range records {
		if _, dup := recs[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %s id %d listed twice", domain.ErrInvalidTree, kind, rec.ID)
		}
		if err := domain.ValidateName(rec.Name); err != nil {
			return nil, fmt.Errorf("%w: %s %d: %v", domain.ErrInvalidTree, kind, rec.ID, err)
		}
		recs[rec.ID] = rec
	}

	children := make(map[int64][]domain.ContainerRecord)
	var roots []domain.ContainerRecord
	for _, rec := range recs {
		if rec.ParentID == nil {
			roots = append(roots, rec)
			continue
		}
		parentID := *rec.ParentID
		if parentID == rec.ID {
			return nil, &domain.CycleError{Kind: kind, NodeID: rec.ID}
		}
		if _, ok := recs[parentID]; !ok {
			return nil, &domain.OrphanError{Kind: kind, NodeID: rec.ID, ParentID: parentID}
		}
		children[parentID] = append(children[parentID], rec)
	}

	sortRecords(roots)
	queue := make([]*Node, 0, len(recs))
	for _, rec := range roots {
		node, err := t.attach(rec, nil)
		if err != nil {
			return nil, err
		}
		queue = append(queue, node)
	}

	// Breadth-first so a revisit can only mean the input loops back
	for i := 0; i < len(queue); i++ {
		parent := queue[i]
		kids := children[parent.ID()]
		sortRecords(kids)
		for _, rec := range kids {
			if _, seen := t.byID[rec.ID]; seen {
				return nil, &domain.CycleError{Kind: kind, NodeID: rec.ID}
			}
			node, err := t.attach(rec, parent)
			if err != nil {
				return nil, err
			}
			queue = append(queue, node)
		}
	}

	if len(t.byID) != len(recs) {
		var unreached []int64
		for id := range recs {
			if _, ok := t.byID[id]; !ok {
				unreached = append(unreached, id)
			}
		}
		sort.Slice(unreached, func(i, j int) bool { return unreached[i] < unreached[j] })
		return nil, &domain.CycleError{Kind: kind, NodeID: unreached[0]}
	}

	return t, nil
}

func sortRecords(recs []domain.ContainerRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Name != recs[j].Name {
			return recs[i].Name < recs[j].Name
		}
		return recs[i].ID < recs[j].ID
	})
}

// attach links rec under parent (nil for a root) and indexes it
func (t *Tree) attach(rec domain.ContainerRecord, parent *Node) (*Node, error) {
	var path domain.Path
	if parent == nil {
		path = domain.Path{rec.Name}
	} else {
		path = parent.Path.Child(rec.Name)
	}

	if existing, ok := t.byPath[path.Key()]; ok {
		return nil, &domain.DuplicateSiblingError{Kind: t.Kind, Path: path, IDs: []int64{existing.ID(), rec.ID}}
	}

	rec.Kind = t.Kind
	node := &Node{Record: rec, Path: path, Parent: parent}
	if parent == nil {
		t.Roots = append(t.Roots, node)
	} else {
		parent.Children = append(parent.Children, node)
	}
	t.byID[rec.ID] = node
	t.byPath[path.Key()] = node
	return node, nil
}

// Insert adds a node created during the current run so deeper descendants
// can resolve against it. parentID nil inserts a root.
func (t *Tree) Insert(rec domain.ContainerRecord) (*Node, error) {
	if _, dup := t.byID[rec.ID]; dup {
		return nil, fmt.Errorf("%s id %d already present", t.Kind, rec.ID)
	}
	var parent *Node
	if rec.ParentID != nil {
		p, ok := t.byID[*rec.ParentID]
		if !ok {
			return nil, &domain.OrphanError{Kind: t.Kind, NodeID: rec.ID, ParentID: *rec.ParentID}
		}
		parent = p
	}

	node, err := t.attach(rec, parent)
	if err != nil {
		return nil, err
	}

	// Keep siblings ordered by name like Build does
	siblings := t.Roots
	if parent != nil {
		siblings = parent.Children
	}
	sort.SliceStable(siblings, func(i, j int) bool {
		return siblings[i].Name() < siblings[j].Name()
	})
	return node, nil
}

// FindByPath returns the node whose name sequence equals path exactly
func (t *Tree) FindByPath(path domain.Path) (*Node, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	node, ok := t.byPath[path.Key()]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", t.Kind, path.String(), domain.ErrNotFound)
	}
	return node, nil
}

// ByID returns the node with the given endpoint-local id
func (t *Tree) ByID(id int64) (*Node, bool) {
	node, ok := t.byID[id]
	return node, ok
}

// PathOf returns the path of the node with the given id
func (t *Tree) PathOf(id int64) (domain.Path, error) {
	node, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s id %d: %w", t.Kind, id, domain.ErrNotFound)
	}
	return node.Path, nil
}

// Len returns the number of nodes
func (t *Tree) Len() int {
	return len(t.byID)
}

// TopDown returns all nodes ordered so that every parent precedes its
// children (breadth-first, siblings by name).
func (t *Tree) TopDown() []*Node {
	out := make([]*Node, 0, len(t.byID))
	out = append(out, t.Roots...)
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].Children...)
	}
	return out
}

// Walk visits nodes depth-first in display order. Returning false from fn
// skips the node's descendants.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(nodes []*Node)
	visit = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) {
				visit(n.Children)
			}
		}
	}
	visit(t.Roots)
}

// Paths lists every node path in display order
func (t *Tree) Paths() []domain.Path {
	var out []domain.Path
	t.Walk(func(n *Node) bool {
		out = append(out, n.Path)
		return true
	})
	return out
}
