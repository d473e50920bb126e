package updater

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrInvalidAction     = errors.New("invalid action")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrNotFound          = errors.New("not found")
	ErrMissingUpdateSite = errors.New("missing update site")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrSiteChanged       = errors.New("update site changed")
)

// InvalidActionError is returned when an action is not in the valid-action
// list of a file's current status.
type InvalidActionError struct {
	Filename string
	Status   Status
	Action   Action
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("action %q is not valid for %s (status %q)", e.Action, e.Filename, e.Status)
}

func (e *InvalidActionError) Unwrap() error { return ErrInvalidAction }

// DuplicateNameError is returned when a registry edit would collide with an
// existing name.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q exists already", e.Kind, e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// NotFoundError is returned when a named entity does not exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// MissingUpdateSiteError is returned when a URL is requested for a file that
// is not associated with any update site.
type MissingUpdateSiteError struct {
	Filename string
}

func (e *MissingUpdateSiteError) Error() string {
	return fmt.Sprintf("file %s has no update site", e.Filename)
}

func (e *MissingUpdateSiteError) Unwrap() error { return ErrMissingUpdateSite }

// ChecksumMismatchError is returned when written content does not hash to
// the expected checksum.
type ChecksumMismatchError struct {
	Filename string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Filename, e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }
