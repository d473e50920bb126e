package updater

import (
	"fmt"
	"slices"
	"strings"
)

// CircularDependency returns the dependency cycle reachable from file as a
// chain of filenames that starts and ends with the same file, or nil.
func (c *Collection) CircularDependency(file *FileRecord) []string {
	return c.findCycle(file, make(map[string]bool))
}

// findCycle walks the dependency chain from root depth first. Files in seen
// are known to lead to no new cycle and are not walked again.
func (c *Collection) findCycle(root *FileRecord, seen map[string]bool) []string {
	var path []string
	onPath := make(map[string]int)

	var walk func(f *FileRecord) []string
	walk = func(f *FileRecord) []string {
		if i, ok := onPath[f.Filename]; ok {
			return append(slices.Clone(path[i:]), f.Filename)
		}
		if seen[f.Filename] {
			return nil
		}
		onPath[f.Filename] = len(path)
		path = append(path, f.Filename)
		for _, dep := range f.dependencies {
			if other := c.index[dep.Filename]; other != nil {
				if cycle := walk(other); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		delete(onPath, f.Filename)
		seen[f.Filename] = true
		return nil
	}

	cycle := walk(root)
	for _, name := range path {
		seen[name] = true
	}
	return cycle
}

// CheckConsistency reports dependency cycles, obsolete files that still
// declare dependencies, requirements on obsolete or local-only files, and
// files referring to unknown update sites. An empty result means the
// collection is consistent.
func (c *Collection) CheckConsistency() []string {
	var diagnostics []string

	seen := make(map[string]bool)
	for _, f := range c.files {
		if cycle := c.findCycle(f, seen); cycle != nil {
			diagnostics = append(diagnostics, "circular dependency detected: "+strings.Join(cycle, " -> "))
		}
	}

	for _, f := range c.files {
		if f.UpdateSite != "" && c.sites.Get(f.UpdateSite) == nil {
			diagnostics = append(diagnostics, fmt.Sprintf("%s refers to unknown update site %s", f.Filename, f.UpdateSite))
		}
		if f.IsObsolete() {
			if len(f.dependencies) > 0 {
				names := make([]string, len(f.dependencies))
				for i, dep := range f.dependencies {
					names[i] = dep.Filename
				}
				diagnostics = append(diagnostics, fmt.Sprintf("obsolete file %s has dependencies: %s", f.Filename, strings.Join(names, ", ")))
			}
			continue
		}
		for _, dep := range f.dependencies {
			other := c.index[dep.Filename]
			switch {
			case other == nil:
				// Unsubscribed sites may provide it.
			case other.IsObsolete():
				diagnostics = append(diagnostics, fmt.Sprintf("%s depends on obsolete file %s", f.Filename, other.Filename))
			case other.status == StatusLocalOnly:
				diagnostics = append(diagnostics, fmt.Sprintf("%s depends on local-only file %s", f.Filename, other.Filename))
			}
		}
	}

	if len(diagnostics) > 0 {
		c.logger.Warn("collection is inconsistent", "problems", len(diagnostics))
	}
	return diagnostics
}
