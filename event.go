// event.go: Domain event vocabulary, diff engine and report builder
//
// Raw backend notifications are reduced to a closed event enumeration.
// The diff engine is a pure function over two metadata snapshots; the
// report builder combines an event, a diff and the current ownership
// fields into the auditable alert record appended to the history log.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package vigilo

import (
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// EventKind is the closed set of domain events Vigilo understands.
// Every raw backend notification either maps onto exactly one kind or
// is rejected before it reaches the pipeline.
type EventKind int

const (
	EventAdd EventKind = iota
	EventModify
	EventDelete
	EventMove
	EventPermissions
)

// String returns the wire token used in watch-event sets and reports.
func (k EventKind) String() string {
	switch k {
	case EventAdd:
		return "add"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventMove:
		return "move"
	case EventPermissions:
		return "permissions"
	default:
		return "unknown"
	}
}

// EventKinds lists every domain event, in wire order.
func EventKinds() []EventKind {
	return []EventKind{EventAdd, EventModify, EventDelete, EventMove, EventPermissions}
}

// ParseEventKind maps a wire token back to its EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "add":
		return EventAdd, nil
	case "modify":
		return EventModify, nil
	case "delete":
		return EventDelete, nil
	case "move":
		return EventMove, nil
	case "permissions":
		return EventPermissions, nil
	default:
		return 0, errors.New(ErrCodeInvalidEvent, "unknown event token").
			WithContext("event", s)
	}
}

// FieldChange records one differing metadata field.
type FieldChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// ChangeSet maps metadata field names to their before/after values.
type ChangeSet map[string]FieldChange

// CompareMetadata is the diff engine: a pure function returning the set of
// metadata fields whose values differ between two snapshots of the same
// path. Only the metadata sub-object participates; identity and monitoring
// configuration are never part of a diff. A nil new snapshot (the file is
// gone) reports every old field against a nil after-value.
func CompareMetadata(old, current *Metadata) ChangeSet {
	changes := make(ChangeSet)
	if old == nil {
		return changes
	}

	diff := func(field string, before, after interface{}, equal bool) {
		if !equal {
			changes[field] = FieldChange{Before: before, After: after}
		}
	}

	if current == nil {
		diff("size", old.Size, nil, false)
		diff("permissions", old.Permissions, nil, false)
		diff("owner", old.Owner, nil, false)
		diff("group", old.Group, nil, false)
		diff("last_modified", old.LastModified, nil, false)
		diff("checksum", checksumValue(old.Checksum), nil, old.Checksum == nil)
		return changes
	}

	diff("size", old.Size, current.Size, old.Size == current.Size)
	diff("permissions", old.Permissions, current.Permissions, old.Permissions == current.Permissions)
	diff("owner", old.Owner, current.Owner, old.Owner == current.Owner)
	diff("group", old.Group, current.Group, old.Group == current.Group)
	diff("last_modified", old.LastModified, current.LastModified, old.LastModified == current.LastModified)
	diff("checksum", checksumValue(old.Checksum), checksumValue(current.Checksum),
		checksumEqual(old.Checksum, current.Checksum))

	return changes
}

func checksumValue(c *string) interface{} {
	if c == nil {
		return nil
	}
	return *c
}

func checksumEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AlertReport is the auditable record produced for every accepted event.
// Field names are the history log wire format.
type AlertReport struct {
	File           string    `json:"File"`
	Event          string    `json:"Event"`
	Time           string    `json:"Time"`
	AlertMode      string    `json:"AlertMode"`
	Owner          string    `json:"Owner"`
	Permissions    string    `json:"Permissions"`
	Changes        ChangeSet `json:"Changes"`
	Interpretation string    `json:"Interpretation"`
	Recommendation string    `json:"Recommendation"`
}

// Interpretation returns the fixed interpretation/recommendation pair for
// an event kind. The mapping is total: every member of the closed enum has
// exactly one pair, enforced by the exhaustive switch below. Permission
// events keep the original engine's generic pair.
func (k EventKind) Interpretation() (interpretation, recommendation string) {
	switch k {
	case EventAdd:
		return "New file was created", "Verify file origin and legitimacy"
	case EventModify:
		return "File content or metadata was modified", "Review changes and verify legitimacy"
	case EventDelete:
		return "File was deleted from filesystem", "Restore from backup if unauthorized"
	case EventMove:
		return "File was moved or renamed", "Verify new location and update monitoring"
	case EventPermissions:
		return "Unknown event type", "Manual investigation required"
	default:
		return "Unknown event type", "Manual investigation required"
	}
}

// BuildReport assembles the alert record for one accepted domain event.
// current may be nil when the path no longer resolves; owner and
// permissions then degrade to "unknown" rather than failing the report.
func BuildReport(kind EventKind, path, alertMode string, current *Metadata, changes ChangeSet) AlertReport {
	owner, perms := "unknown", "unknown"
	if current != nil {
		owner, perms = current.Owner, current.Permissions
	}

	interpretation, recommendation := kind.Interpretation()

	return AlertReport{
		File:           path,
		Event:          kind.String(),
		Time:           timecache.CachedTime().Format(time.RFC3339Nano),
		AlertMode:      alertMode,
		Owner:          owner,
		Permissions:    perms,
		Changes:        changes,
		Interpretation: interpretation,
		Recommendation: recommendation,
	}
}
