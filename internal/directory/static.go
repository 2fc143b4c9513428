package directory

import (
	"context"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// User is one entry of a static directory file.
type User struct {
	ID       string   `yaml:"id"`
	Roles    []string `yaml:"roles"`
	Branches []string `yaml:"branches"`
	Admin    bool     `yaml:"admin"`
}

type staticFile struct {
	Users []User `yaml:"users"`
}

// StaticDirectory serves lookups from an in-memory user list, typically
// loaded from a YAML file for single-node deployments.
type StaticDirectory struct {
	users []User
}

func NewStaticDirectory(users []User) *StaticDirectory {
	return &StaticDirectory{users: users}
}

// LoadStaticDirectory reads a file of the form:
//
//	users:
//	  - id: u1
//	    roles: [manager]
//	    branches: [north]
//	    admin: true
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("directory file: user %d has no id", i)
		}
	}
	return NewStaticDirectory(f.Users), nil
}

func (d *StaticDirectory) UsersByRoles(_ context.Context, roles []string) ([]string, error) {
	return d.match(func(u User) bool { return overlaps(u.Roles, roles) }), nil
}

func (d *StaticDirectory) UsersByBranches(_ context.Context, branches []string) ([]string, error) {
	return d.match(func(u User) bool { return overlaps(u.Branches, branches) }), nil
}

func (d *StaticDirectory) Admins(_ context.Context) ([]string, error) {
	return d.match(func(u User) bool { return u.Admin }), nil
}

func (d *StaticDirectory) match(fn func(User) bool) []string {
	var ids []string
	for _, u := range d.users {
		if fn(u) {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
