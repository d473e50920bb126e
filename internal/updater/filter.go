package updater

import (
	"iter"
	"slices"
	"strings"
)

// Filter is a predicate over file records. Filters compose with Not, And and Or.
type Filter func(*FileRecord) bool

// Filtered returns a lazy view of the files in source matching filter. Each
// traversal re-evaluates filter exactly once per element, in source order.
func Filtered(filter Filter, source iter.Seq[*FileRecord]) iter.Seq[*FileRecord] {
	return func(yield func(*FileRecord) bool) {
		for file := range source {
			if filter(file) && !yield(file) {
				return
			}
		}
	}
}

// Search returns a lazy view of the files whose name contains keyword,
// ignoring case and surrounding whitespace.
func Search(keyword string, source iter.Seq[*FileRecord]) iter.Seq[*FileRecord] {
	return Filtered(Contains(keyword), source)
}

func Yes() Filter {
	return func(*FileRecord) bool { return true }
}

func IsAction(action Action) Filter {
	return func(f *FileRecord) bool { return f.action == action }
}

func OneOfActions(actions ...Action) Filter {
	set := slices.Clone(actions)
	return func(f *FileRecord) bool { return slices.Contains(set, f.action) }
}

// IsNoAction matches files whose action is their status's default.
func IsNoAction() Filter {
	return func(f *FileRecord) bool { return f.action == f.status.DefaultAction() }
}

func IsStatus(status Status) Filter {
	return func(f *FileRecord) bool { return f.status == status }
}

func OneOfStatuses(statuses ...Status) Filter {
	set := slices.Clone(statuses)
	return func(f *FileRecord) bool { return slices.Contains(set, f.status) }
}

// IsUpdateSite matches files owned by the named site. Local-only files never match.
func IsUpdateSite(name string) Filter {
	return func(f *FileRecord) bool { return f.UpdateSite != "" && f.UpdateSite == name }
}

// StartsWith matches filenames beginning with any of the prefixes.
func StartsWith(prefixes ...string) Filter {
	return func(f *FileRecord) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(f.Filename, p) {
				return true
			}
		}
		return false
	}
}

// EndsWith matches filenames ending with any of the suffixes.
func EndsWith(suffixes ...string) Filter {
	return func(f *FileRecord) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(f.Filename, s) {
				return true
			}
		}
		return false
	}
}

// Contains matches filenames containing keyword, case-insensitively.
func Contains(keyword string) Filter {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	return func(f *FileRecord) bool {
		return strings.Contains(strings.ToLower(strings.TrimSpace(f.Filename)), keyword)
	}
}

func HasMetadataChanges() Filter {
	return func(f *FileRecord) bool { return f.MetadataChanged }
}

func Not(filter Filter) Filter {
	return func(f *FileRecord) bool { return !filter(f) }
}

// And matches when every filter matches; And() matches everything.
func And(filters ...Filter) Filter {
	return func(f *FileRecord) bool {
		for _, filter := range filters {
			if !filter(f) {
				return false
			}
		}
		return true
	}
}

// Or matches when any filter matches; Or() matches nothing.
func Or(filters ...Filter) Filter {
	return func(f *FileRecord) bool {
		for _, filter := range filters {
			if filter(f) {
				return true
			}
		}
		return false
	}
}
