package wizard

import (
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/builder"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

// Answers holds the raw form values. Tools is a comma separated list.
type Answers struct {
	Name         string
	Description  string
	Scope        string
	Tools        string
	Model        string
	Color        string
	ArgumentHint string
	Version      string
	License      string
	Body         string
	Confirm      bool
}

// Spec converts the answers into the spec of kind
func (a Answers) Spec(kind artifact.Kind) (builder.Spec, error) {
	scope, err := artifact.ParseScope(a.Scope)
	if err != nil {
		return nil, errors.Wrap(validation.ErrValidation, err.Error())
	}
	name := strings.TrimSpace(a.Name)
	desc := strings.TrimSpace(a.Description)
	tools := artifact.SplitList(a.Tools)

	switch kind {
	case artifact.KindSkill:
		return &builder.SkillSpec{
			Name: name, Description: desc, Scope: scope, AllowedTools: tools,
			Version: strings.TrimSpace(a.Version), License: strings.TrimSpace(a.License), Body: a.Body,
		}, nil
	case artifact.KindCommand:
		return &builder.CommandSpec{
			Name: name, Description: desc, Scope: scope, AllowedTools: tools,
			ArgumentHint: strings.TrimSpace(a.ArgumentHint), Model: a.Model, Body: a.Body,
		}, nil
	default:
		return &builder.AgentSpec{
			Name: name, Description: desc, Scope: scope, Tools: tools,
			Model: a.Model, Color: a.Color, Body: a.Body,
		}, nil
	}
}

func validateName(kind artifact.Kind) func(string) error {
	return func(s string) error {
		if kind == artifact.KindCommand {
			return validation.ValidateCommandName(strings.TrimSpace(s))
		}
		return validation.ValidateName(strings.TrimSpace(s))
	}
}

func validateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("description is required")
	}
	if err := validation.ValidateText("description", s, 1024); err != nil {
		return err
	}
	return validation.ValidateShellText(s)
}

func validateTools(s string) error {
	for _, tool := range artifact.SplitList(s) {
		if !validation.IsToolName(tool) {
			return errors.Errorf("%q is not a valid tool name", tool)
		}
	}
	return nil
}

func validateBody(s string) error {
	if err := validation.ValidateText("body", s, validation.MaxBodyLength); err != nil {
		return err
	}
	return validation.ValidateShellText(s)
}

func options(values ...string) []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(default)", "")}
	return append(opts, huh.NewOptions(values...)...)
}

// Form builds the huh form collecting the fields of kind into a
func Form(kind artifact.Kind, a *Answers) *huh.Form {
	namePlaceholder := "my-" + string(kind)
	if kind == artifact.KindCommand {
		namePlaceholder = "git:commit"
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Name").
			Placeholder(namePlaceholder).
			Validate(validateName(kind)).
			Value(&a.Name),
		huh.NewInput().
			Title("Description").
			Description("When should the assistant use it?").
			Validate(validateDescription).
			Value(&a.Description),
		huh.NewSelect[string]().
			Title("Scope").
			Options(huh.NewOptions(string(artifact.ScopeProject), string(artifact.ScopeLocal), string(artifact.ScopeGlobal))...).
			Value(&a.Scope),
		huh.NewInput().
			Title("Tools").
			Description("Comma separated, e.g. Read, Grep, Bash(git status:*)").
			Validate(validateTools).
			Value(&a.Tools),
	}

	var extra []huh.Field
	switch kind {
	case artifact.KindSkill:
		extra = append(extra,
			huh.NewInput().Title("Version").Placeholder("1.0.0").Value(&a.Version),
			huh.NewInput().Title("License").Value(&a.License),
		)
	case artifact.KindCommand:
		extra = append(extra,
			huh.NewInput().Title("Argument hint").Placeholder("[file] [message]").Value(&a.ArgumentHint),
			huh.NewSelect[string]().Title("Model").Options(options("sonnet", "opus", "haiku")...).Value(&a.Model),
		)
	case artifact.KindAgent:
		extra = append(extra,
			huh.NewSelect[string]().Title("Model").Options(options("sonnet", "opus", "haiku", "inherit")...).Value(&a.Model),
			huh.NewSelect[string]().Title("Color").
				Options(options("red", "blue", "green", "yellow", "purple", "orange", "pink", "cyan")...).
				Value(&a.Color),
		)
	}

	body := huh.NewText().
		Title(bodyTitle(kind)).
		Description("Leave empty for the default template").
		Lines(8).
		Validate(validateBody).
		Value(&a.Body)

	return huh.NewForm(
		huh.NewGroup(fields...),
		huh.NewGroup(append(extra, body)...),
	)
}

func bodyTitle(kind artifact.Kind) string {
	switch kind {
	case artifact.KindAgent:
		return "System prompt"
	case artifact.KindCommand:
		return "Prompt"
	default:
		return "Instructions"
	}
}

// ConfirmForm asks whether to write the previewed artifact
func ConfirmForm(kind artifact.Kind, confirm *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Create this " + string(kind) + "?").
				Affirmative("Create").
				Negative("Cancel").
				Value(confirm),
		),
	)
}
