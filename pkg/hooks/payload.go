package hooks

import (
	"time"

	"github.com/jingkaihe/agentkit/pkg/artifact"
)

// Payload is the JSON document written to a hook's stdin
type Payload struct {
	Event      HookType       `json:"event"`
	Kind       artifact.Kind  `json:"kind"`
	Scope      artifact.Scope `json:"scope,omitempty"`
	Name       string         `json:"name,omitempty"`
	Path       string         `json:"path,omitempty"`
	ProjectDir string         `json:"project_dir,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Sync       *SyncSummary   `json:"sync,omitempty"`
}

// SyncSummary is attached to after_sync payloads
type SyncSummary struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}
