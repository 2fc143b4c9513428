package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type TargetKind string

const (
	TargetUsers     TargetKind = "explicit-users"
	TargetRoles     TargetKind = "roles"
	TargetBranches  TargetKind = "branches"
	TargetAllAdmins TargetKind = "all-admins"
)

// TargetSpec selects the recipients of a notification. Values holds the
// selector for Kind (user ids, role names or branch ids). Users lists extra
// user ids that are always included, whatever the Kind.
type TargetSpec struct {
	Kind   TargetKind `json:"kind"`
	Values []string   `json:"values,omitempty"`
	Users  []string   `json:"users,omitempty"`
}

func (t TargetSpec) Validate() error {
	switch t.Kind {
	case TargetUsers, TargetAllAdmins:
		return nil
	case TargetRoles, TargetBranches:
		if len(t.Values) == 0 {
			return fmt.Errorf("target kind %q requires at least one value", t.Kind)
		}
		return nil
	case "":
		return fmt.Errorf("target kind is required")
	}
	return fmt.Errorf("unknown target kind %q", t.Kind)
}

func (t TargetSpec) Value() (driver.Value, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *TargetSpec) Scan(src any) error {
	return scanJSON(src, t)
}
