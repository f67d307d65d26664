// Package artifact describes the configuration files consumed by the AI
// coding assistant: skills, commands and agents. Each is a Markdown file
// with YAML frontmatter installed under one of three scopes.
package artifact

import (
	"github.com/pkg/errors"
)

// Kind identifies the type of configuration artifact
type Kind string

// Supported artifact kinds
const (
	KindSkill   Kind = "skill"
	KindCommand Kind = "command"
	KindAgent   Kind = "agent"
)

// Kinds lists every supported kind in display order
var Kinds = []Kind{KindSkill, KindCommand, KindAgent}

// Subdir returns the directory name holding artifacts of this kind
func (k Kind) Subdir() string {
	return string(k) + "s"
}

// Plural returns the human readable plural name
func (k Kind) Plural() string {
	return string(k) + "s"
}

// ParseKind converts a string such as "skill" or "skills" into a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "skill", "skills":
		return KindSkill, nil
	case "command", "commands":
		return KindCommand, nil
	case "agent", "agents":
		return KindAgent, nil
	default:
		return "", errors.Errorf("unknown kind %q, must be one of: skill, command, agent", s)
	}
}

// Scope is the installation location of an artifact
type Scope string

// Supported scopes
const (
	ScopeGlobal  Scope = "global"  // user-wide
	ScopeProject Scope = "project" // committed with the repository
	ScopeLocal   Scope = "local"   // inside the repository but never committed
)

// Scopes lists every scope in precedence order for discovery
var Scopes = []Scope{ScopeLocal, ScopeProject, ScopeGlobal}

// ParseScope converts a string into a Scope
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeProject, ScopeLocal:
		return Scope(s), nil
	default:
		return "", errors.Errorf("unknown scope %q, must be one of: global, project, local", s)
	}
}

// ParseScopes parses a list of scope names. An empty list means all scopes.
func ParseScopes(values []string) ([]Scope, error) {
	if len(values) == 0 {
		return Scopes, nil
	}
	scopes := make([]Scope, 0, len(values))
	for _, v := range values {
		s, err := ParseScope(v)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}
