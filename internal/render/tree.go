package render

import (
	"fmt"

	"github.com/lherron/aiomigrate/internal/tree"
)

// treeEntry is the serialized form of a container node
type treeEntry struct {
	ID       int64       `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Path     string      `json:"path" yaml:"path"`
	Children []treeEntry `json:"children,omitempty" yaml:"children,omitempty"`
}

func entries(nodes []*tree.Node) []treeEntry {
	out := make([]treeEntry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, treeEntry{
			ID:       n.ID(),
			Name:     n.Name(),
			Path:     n.Path.String(),
			Children: entries(n.Children),
		})
	}
	return out
}

// Tree renders a container forest: box-drawing lines for tables, nested
// objects for JSON and YAML
func (r *Renderer) Tree(t *tree.Tree) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(entries(t.Roots))
	case FormatYAML:
		return r.RenderYAML(entries(t.Roots))
	}

	if r.opts.Porcelain {
		t.Walk(func(n *tree.Node) bool {
			fmt.Fprintf(r.writer, "%d\t%s\n", n.ID(), n.Path.String())
			return true
		})
		return nil
	}
	r.printNodes(t.Roots, "")
	return nil
}

func (r *Renderer) printNodes(nodes []*tree.Node, prefix string) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		connector, childPrefix := "├── ", prefix+"│   "
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		}
		fmt.Fprintf(r.writer, "%s%s%s (%d)\n", prefix, connector, n.Name(), n.ID())
		r.printNodes(n.Children, childPrefix)
	}
}
