package updater

import "slices"

// DependencyMap is a reverse index from a required file to the files that
// require it. It is rebuilt on demand and never persisted.
type DependencyMap struct {
	files      []*FileRecord
	dependents map[*FileRecord][]*FileRecord
}

func newDependencyMap() *DependencyMap {
	return &DependencyMap{dependents: make(map[*FileRecord][]*FileRecord)}
}

// add records that dependent requires dependency and reports whether
// dependency was not in the map before.
func (m *DependencyMap) add(dependency, dependent *FileRecord) bool {
	list, ok := m.dependents[dependency]
	if !slices.Contains(list, dependent) {
		m.dependents[dependency] = append(list, dependent)
	}
	if !ok {
		m.files = append(m.files, dependency)
	}
	return !ok
}

// Files returns the required files in discovery order.
func (m *DependencyMap) Files() []*FileRecord { return slices.Clone(m.files) }

// Dependents returns the files requiring f.
func (m *DependencyMap) Dependents(f *FileRecord) []*FileRecord {
	return slices.Clone(m.dependents[f])
}

func (m *DependencyMap) Contains(f *FileRecord) bool {
	_, ok := m.dependents[f]
	return ok
}

func (m *DependencyMap) Len() int { return len(m.files) }

// addDependencies expands the dependency edges of file with the given
// override flag into m. Unresolved targets, targets for another platform and
// targets already in the wanted state are skipped. Only requirement edges
// are followed transitively.
func (c *Collection) addDependencies(file *FileRecord, m *DependencyMap, overriding bool) {
	for _, dep := range file.dependencies {
		if dep.Overrides != overriding {
			continue
		}
		other := c.index[dep.Filename]
		if other == nil || !other.IsUpdateablePlatform(c.platform) {
			continue
		}
		if overriding {
			if other.WillNotBeInstalled() {
				continue
			}
		} else if other.WillBeUpToDate() {
			continue
		}
		if m.add(other, file) && !overriding {
			c.addDependencies(other, m, overriding)
		}
	}
}

// Dependencies returns the files required (or, with overriding, replaced)
// by the files marked for install or update.
func (c *Collection) Dependencies(overriding bool) *DependencyMap {
	m := newDependencyMap()
	for f := range c.ToInstallOrUpdate() {
		c.addDependencies(f, m, overriding)
	}
	return m
}

// MarkDependencies marks every file required by the pending installs and
// updates for install or update. Requirements that cannot be satisfied are
// returned as diagnostics.
func (c *Collection) MarkDependencies() []string {
	var diagnostics []string
	m := c.Dependencies(false)
	for _, f := range m.files {
		if f.IsLocallyModified() {
			diagnostics = append(diagnostics, f.Filename+" is required by "+joinNames(m.dependents[f])+" but was modified locally")
			continue
		}
		if !c.SetFirstValidAction(f, ActionInstall, ActionUpdate) {
			diagnostics = append(diagnostics, f.Filename+" is required by "+joinNames(m.dependents[f])+" but cannot be installed ("+f.status.String()+")")
			continue
		}
		c.logger.Debug("marked dependency", "file", f.Filename, "action", f.action)
	}
	return diagnostics
}

// DependentsOf returns the files declaring a dependency on file.
func (c *Collection) DependentsOf(file *FileRecord) []*FileRecord {
	var result []*FileRecord
	for _, f := range c.files {
		if f.HasDependency(file.Filename) {
			result = append(result, f)
		}
	}
	return result
}

func joinNames(files []*FileRecord) string {
	out := ""
	for i, f := range files {
		if i > 0 {
			out += ", "
		}
		out += f.Filename
	}
	return out
}
