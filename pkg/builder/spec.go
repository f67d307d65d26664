package builder

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

// Spec is the validated input for creating an artifact of one kind
type Spec interface {
	Kind() artifact.Kind
	Identity() (string, artifact.Scope)
	// TemplateData returns the values handed to the kind's template
	TemplateData() TemplateData
	// shellText returns the fields that end up in text the assistant may execute
	shellText() []string
}

// TemplateData is the data available to artifact templates. Override
// templates may reference any of these fields.
type TemplateData struct {
	Name         string
	Description  string
	Tools        []string
	License      string
	Version      string
	ArgumentHint string
	Model        string
	Color        string
	Body         string
}

// SkillSpec describes a skill: a directory with a SKILL.md file
type SkillSpec struct {
	Name         string         `yaml:"name" validate:"required,artifactname"`
	Description  string         `yaml:"description" validate:"required,min=1,max=1024,safetext"`
	Scope        artifact.Scope `yaml:"scope" validate:"required,oneof=global project local"`
	AllowedTools []string       `yaml:"allowed-tools" validate:"omitempty,dive,toolname"`
	Version      string         `yaml:"version" validate:"omitempty,version"`
	License      string         `yaml:"license" validate:"omitempty,max=128,safetext"`
	Body         string         `yaml:"body" validate:"omitempty,max=524288,safetext"`
}

func (s *SkillSpec) Kind() artifact.Kind { return artifact.KindSkill }

func (s *SkillSpec) Identity() (string, artifact.Scope) { return s.Name, s.Scope }

func (s *SkillSpec) TemplateData() TemplateData {
	return TemplateData{
		Name:        s.Name,
		Description: s.Description,
		Tools:       s.AllowedTools,
		License:     s.License,
		Version:     s.Version,
		Body:        strings.TrimSpace(s.Body),
	}
}

func (s *SkillSpec) shellText() []string {
	return append([]string{s.Description, s.Body}, s.AllowedTools...)
}

// CommandSpec describes a slash command
type CommandSpec struct {
	Name         string         `yaml:"name" validate:"required,commandname"`
	Description  string         `yaml:"description" validate:"required,min=1,max=1024,safetext"`
	Scope        artifact.Scope `yaml:"scope" validate:"required,oneof=global project local"`
	ArgumentHint string         `yaml:"argument-hint" validate:"omitempty,max=256,safetext"`
	AllowedTools []string       `yaml:"allowed-tools" validate:"omitempty,dive,toolname"`
	Model        string         `yaml:"model" validate:"omitempty,oneof=sonnet opus haiku"`
	Body         string         `yaml:"body" validate:"omitempty,max=524288,safetext"`
}

func (s *CommandSpec) Kind() artifact.Kind { return artifact.KindCommand }

func (s *CommandSpec) Identity() (string, artifact.Scope) { return s.Name, s.Scope }

func (s *CommandSpec) TemplateData() TemplateData {
	return TemplateData{
		Name:         s.Name,
		Description:  s.Description,
		Tools:        s.AllowedTools,
		ArgumentHint: s.ArgumentHint,
		Model:        s.Model,
		Body:         strings.TrimSpace(s.Body),
	}
}

func (s *CommandSpec) shellText() []string {
	return append([]string{s.Description, s.ArgumentHint, s.Body}, s.AllowedTools...)
}

// AgentSpec describes a subagent. Body is its system prompt.
type AgentSpec struct {
	Name        string         `yaml:"name" validate:"required,artifactname"`
	Description string         `yaml:"description" validate:"required,min=1,max=1024,safetext"`
	Scope       artifact.Scope `yaml:"scope" validate:"required,oneof=global project local"`
	Tools       []string       `yaml:"tools" validate:"omitempty,dive,toolname"`
	Model       string         `yaml:"model" validate:"omitempty,oneof=sonnet opus haiku inherit"`
	Color       string         `yaml:"color" validate:"omitempty,oneof=red blue green yellow purple orange pink cyan"`
	Body        string         `yaml:"body" validate:"omitempty,max=524288,safetext"`
}

func (s *AgentSpec) Kind() artifact.Kind { return artifact.KindAgent }

func (s *AgentSpec) Identity() (string, artifact.Scope) { return s.Name, s.Scope }

func (s *AgentSpec) TemplateData() TemplateData {
	return TemplateData{
		Name:        s.Name,
		Description: s.Description,
		Tools:       s.Tools,
		Model:       s.Model,
		Color:       s.Color,
		Body:        strings.TrimSpace(s.Body),
	}
}

func (s *AgentSpec) shellText() []string {
	return append([]string{s.Description, s.Body}, s.Tools...)
}

// NewSpec returns an empty spec of kind
func NewSpec(kind artifact.Kind) Spec {
	switch kind {
	case artifact.KindSkill:
		return &SkillSpec{}
	case artifact.KindCommand:
		return &CommandSpec{}
	default:
		return &AgentSpec{}
	}
}

// toolsKey is the frontmatter key listing tools for kind
func toolsKey(kind artifact.Kind) string {
	if kind == artifact.KindAgent {
		return "tools"
	}
	return "allowed-tools"
}

// SpecFromDocument rebuilds the spec of an artifact from its parsed file
func SpecFromDocument(kind artifact.Kind, scope artifact.Scope, name string, doc *artifact.Document) Spec {
	tools := doc.Strings(toolsKey(kind))
	switch kind {
	case artifact.KindSkill:
		return &SkillSpec{
			Name:         name,
			Description:  doc.String("description"),
			Scope:        scope,
			AllowedTools: tools,
			Version:      doc.String("version"),
			License:      doc.String("license"),
			Body:         doc.Body,
		}
	case artifact.KindCommand:
		return &CommandSpec{
			Name:         name,
			Description:  doc.String("description"),
			Scope:        scope,
			ArgumentHint: doc.String("argument-hint"),
			AllowedTools: tools,
			Model:        doc.String("model"),
			Body:         doc.Body,
		}
	default:
		return &AgentSpec{
			Name:        name,
			Description: doc.String("description"),
			Scope:       scope,
			Tools:       tools,
			Model:       doc.String("model"),
			Color:       doc.String("color"),
			Body:        doc.Body,
		}
	}
}

// Patch lists the fields Update changes. Nil fields are left alone.
type Patch struct {
	Description  *string
	Tools        *[]string
	Model        *string
	Color        *string
	ArgumentHint *string
	Version      *string
	License      *string
	Body         *string
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Description == nil && p.Tools == nil && p.Model == nil && p.Color == nil &&
		p.ArgumentHint == nil && p.Version == nil && p.License == nil && p.Body == nil
}

func errUnsupportedField(kind artifact.Kind, fields string) error {
	return errors.Wrapf(validation.ErrValidation, "a %s does not support %s", kind, fields)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Apply applies p to spec. Fields that do not exist for the spec's kind are
// reported as errors.
func (p Patch) Apply(spec Spec) error {
	switch s := spec.(type) {
	case *SkillSpec:
		if p.Model != nil || p.Color != nil || p.ArgumentHint != nil {
			return errUnsupportedField(s.Kind(), "model, color and argument-hint")
		}
		set(&s.Description, p.Description)
		set(&s.AllowedTools, p.Tools)
		set(&s.Version, p.Version)
		set(&s.License, p.License)
		set(&s.Body, p.Body)
	case *CommandSpec:
		if p.Color != nil || p.Version != nil || p.License != nil {
			return errUnsupportedField(s.Kind(), "color, version and license")
		}
		set(&s.Description, p.Description)
		set(&s.AllowedTools, p.Tools)
		set(&s.Model, p.Model)
		set(&s.ArgumentHint, p.ArgumentHint)
		set(&s.Body, p.Body)
	case *AgentSpec:
		if p.ArgumentHint != nil || p.Version != nil || p.License != nil {
			return errUnsupportedField(s.Kind(), "argument-hint, version and license")
		}
		set(&s.Description, p.Description)
		set(&s.Tools, p.Tools)
		set(&s.Model, p.Model)
		set(&s.Color, p.Color)
		set(&s.Body, p.Body)
	}
	return nil
}
