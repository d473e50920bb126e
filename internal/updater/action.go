package updater

import (
	"fmt"
	"slices"
)

// Action is the operation queued to reconcile a file.
type Action int

const (
	ActionNone Action = iota
	ActionInstall
	ActionUpdate
	ActionUninstall
	ActionRemove
	ActionUpload
)

var actionNames = [...]string{
	ActionNone:      "none",
	ActionInstall:   "install",
	ActionUpdate:    "update",
	ActionUninstall: "uninstall",
	ActionRemove:    "remove",
	ActionUpload:    "upload",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction converts the textual form produced by String back to an Action.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action: %q", s)
}

// Status is the derived relationship between a file's local and remote state.
// It is only ever assigned by the reconciliation step.
type Status int

const (
	StatusNotInstalled Status = iota
	StatusInstalled
	StatusUpdateAvailable
	StatusModified
	StatusLocalOnly
	StatusNewRemote
	StatusObsoleteUninstalled
	StatusObsolete
	StatusObsoleteModified
)

var statusNames = [...]string{
	StatusNotInstalled:        "not-installed",
	StatusInstalled:           "installed",
	StatusUpdateAvailable:     "update-available",
	StatusModified:            "modified",
	StatusLocalOnly:           "local-only",
	StatusNewRemote:           "new-remote",
	StatusObsoleteUninstalled: "obsolete-uninstalled",
	StatusObsolete:            "obsolete",
	StatusObsoleteModified:    "obsolete-modified",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus converts the textual form produced by String back to a Status.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return StatusNotInstalled, fmt.Errorf("unknown status: %q", s)
}

// transition lists the actions a user may choose for a status, beyond the
// default no-op. Developers (files on an uploadable site) get the superset.
type transition struct {
	user      []Action
	developer []Action
}

var transitions = [...]transition{
	StatusNotInstalled: {
		user:      []Action{ActionInstall},
		developer: []Action{ActionInstall, ActionRemove},
	},
	StatusInstalled: {
		user:      []Action{ActionUninstall},
		developer: []Action{ActionUninstall},
	},
	StatusUpdateAvailable: {
		user:      []Action{ActionUpdate, ActionUninstall},
		developer: []Action{ActionUpdate, ActionUninstall, ActionUpload},
	},
	// A modified file is still present remotely, so it can only be reverted.
	StatusModified: {
		user:      []Action{ActionUpdate},
		developer: []Action{ActionUpdate, ActionUpload},
	},
	StatusLocalOnly: {
		developer: []Action{ActionUpload},
	},
	StatusNewRemote: {
		user:      []Action{ActionInstall},
		developer: []Action{ActionInstall, ActionRemove},
	},
	StatusObsoleteUninstalled: {},
	StatusObsolete: {
		user:      []Action{ActionUninstall},
		developer: []Action{ActionUninstall, ActionUpload},
	},
	StatusObsoleteModified: {
		user:      []Action{ActionUninstall},
		developer: []Action{ActionUninstall, ActionUpload},
	},
}

// DefaultAction is the no-op action of every status.
func (s Status) DefaultAction() Action { return ActionNone }

// Actions returns the valid actions for a regular user, default first.
func (s Status) Actions() []Action {
	return append([]Action{s.DefaultAction()}, transitions[s].user...)
}

// DeveloperActions returns the valid actions when the file's site is
// uploadable, default first.
func (s Status) DeveloperActions() []Action {
	return append([]Action{s.DefaultAction()}, transitions[s].developer...)
}

// choices returns the non-default actions.
func (s Status) choices(developer bool) []Action {
	if developer {
		return slices.Clone(transitions[s].developer)
	}
	return slices.Clone(transitions[s].user)
}

// IsValid reports whether action is allowed for this status.
func (s Status) IsValid(action Action, developer bool) bool {
	return action == s.DefaultAction() || slices.Contains(s.choices(developer), action)
}

// IsObsolete reports whether the file was withdrawn from its update site.
func (s Status) IsObsolete() bool {
	switch s {
	case StatusObsolete, StatusObsoleteModified, StatusObsoleteUninstalled:
		return true
	}
	return false
}
