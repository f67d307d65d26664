// Package catalog maintains the JSON index of installed artifacts. There is
// one catalog file per kind; entries are identified by name and scope.
package catalog

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/artifact"
)

// FormatVersion is written to every catalog file
const FormatVersion = "1.0"

var (
	// ErrAlreadyExists is returned when adding an entry whose name and scope are taken
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound is returned when no entry matches a name and scope
	ErrNotFound = errors.New("not found")
)

// Entry is a single catalog record
type Entry struct {
	ID          string         `json:"id" jsonschema:"minLength=1"`
	Name        string         `json:"name" jsonschema:"minLength=1,maxLength=128"`
	Description string         `json:"description"`
	Scope       artifact.Scope `json:"scope" jsonschema:"enum=global,enum=project,enum=local"`
	Path        string         `json:"path" jsonschema:"minLength=1"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Key identifies the entry within its catalog
func (e Entry) Key() string {
	return Key(e.Name, e.Scope)
}

// Key builds the identity string of name in scope
func Key(name string, scope artifact.Scope) string {
	return string(scope) + "/" + name
}

// sameContent reports whether applying o to e would change nothing. Keys
// present only in e's metadata (such as install provenance) are ignored.
func (e Entry) sameContent(o Entry) bool {
	if e.Description != o.Description || e.Path != o.Path {
		return false
	}
	for k, v := range o.Metadata {
		if !jsonEqual(e.Metadata[k], v) {
			return false
		}
	}
	return true
}

// jsonEqual compares values through their JSON encoding so values decoded
// from disk ([]any) match freshly built ones ([]string)
func jsonEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// Catalog is the on-disk document
type Catalog struct {
	Version   string        `json:"version" jsonschema:"enum=1.0"`
	Kind      artifact.Kind `json:"kind" jsonschema:"enum=skill,enum=command,enum=agent"`
	UpdatedAt time.Time     `json:"updated_at"`
	Entries   []Entry       `json:"entries"`
}

func (c *Catalog) index(name string, scope artifact.Scope) int {
	for i, e := range c.Entries {
		if e.Name == name && e.Scope == scope {
			return i
		}
	}
	return -1
}

// Filter narrows List and Search results
type Filter struct {
	Scope artifact.Scope
}

func (f Filter) match(e Entry) bool {
	return f.Scope == "" || e.Scope == f.Scope
}

// SyncResult reports the changes made by Reconcile, as entry keys
type SyncResult struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Changed reports whether Reconcile modified the catalog
func (r SyncResult) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Removed) > 0
}

// Stats summarises a catalog
type Stats struct {
	Kind      artifact.Kind          `json:"kind"`
	Total     int                    `json:"total"`
	ByScope   map[artifact.Scope]int `json:"by_scope"`
	UpdatedAt time.Time              `json:"updated_at"`
}
