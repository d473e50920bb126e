package updater

import (
	"errors"
	"fmt"

	"ocm.software/open-component-model/bindings/go/dag"
)

// InstallOrder returns the files marked for install or update so that every
// file comes after the files it requires. Edges that would close a cycle
// are skipped.
func (c *Collection) InstallOrder() ([]*FileRecord, error) {
	graph := dag.NewDirectedAcyclicGraph[string]()
	var files []*FileRecord
	for f := range c.ToInstallOrUpdate() {
		if err := graph.AddVertex(f.Filename); err != nil {
			return nil, fmt.Errorf("adding %s to install graph: %w", f.Filename, err)
		}
		files = append(files, f)
	}

	edges := make(map[string][]string)
	for _, f := range files {
		for _, dep := range f.dependencies {
			if dep.Overrides || !graph.Contains(dep.Filename) {
				continue
			}
			if dep.Filename == f.Filename || reaches(edges, dep.Filename, f.Filename) {
				c.logger.Warn("skipping circular dependency in install order", "file", f.Filename, "dependency", dep.Filename)
				continue
			}
			if err := graph.AddEdge(f.Filename, dep.Filename); err != nil {
				var cycle *dag.CycleError
				if errors.As(err, &cycle) || errors.Is(err, dag.ErrSelfReference) {
					c.logger.Warn("skipping circular dependency in install order", "file", f.Filename, "dependency", dep.Filename)
					continue
				}
				return nil, fmt.Errorf("adding dependency %s -> %s: %w", f.Filename, dep.Filename, err)
			}
			edges[f.Filename] = append(edges[f.Filename], dep.Filename)
		}
	}

	names, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("sorting install graph: %w", err)
	}
	ordered := make([]*FileRecord, 0, len(names))
	for _, name := range names {
		ordered = append(ordered, c.index[name])
	}
	return ordered, nil
}

// reaches reports whether to is reachable from from over edges.
func reaches(edges map[string][]string, from, to string) bool {
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, edges[n]...)
	}
	return false
}
