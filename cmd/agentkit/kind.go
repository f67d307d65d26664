package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/builder"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/wizard"
)

func newKindCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Manage %s", kind.Plural()),
		Long: fmt.Sprintf(`Create, update, delete and inspect %s.

Every %s lives in a scope:
  global   user-wide, under ~/%s
  project  committed with the repository
  local    inside the repository but excluded from git`, kind.Plural(), kind, kind.Subdir()),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newCreateCmd(a, kind),
		newUpdateCmd(a, kind),
		newDeleteCmd(a, kind),
		newListCmd(a, kind),
		newSearchCmd(a, kind),
		newShowCmd(a, kind),
		newValidateCmd(a, kind),
		newSyncCmd(a, kind),
		newWizardCmd(a, kind),
	)
	return cmd
}

// addFieldFlags registers the artifact field flags shared by create and update
func addFieldFlags(flags *pflag.FlagSet, kind artifact.Kind) {
	flags.StringP("description", "d", "", "What the "+string(kind)+" does and when to use it")
	flags.StringSlice("tools", nil, "Tools the "+string(kind)+" may use (comma separated)")
	flags.String("body", "", "Markdown body")
	flags.String("body-file", "", "Read the Markdown body from a file, - for stdin")

	switch kind {
	case artifact.KindSkill:
		flags.String("version", "", "Semantic version of the skill")
		flags.String("license", "", "License of the skill")
	case artifact.KindCommand:
		flags.String("model", "", "Model running the command (sonnet, opus, haiku)")
		flags.String("argument-hint", "", "Hint shown for the command arguments")
	case artifact.KindAgent:
		flags.String("model", "", "Model running the agent (sonnet, opus, haiku, inherit)")
		flags.String("color", "", "Display color of the agent")
	}
}

// patchFromFlags collects the field flags the user set
func patchFromFlags(cmd *cobra.Command) (builder.Patch, error) {
	var patch builder.Patch
	flags := cmd.Flags()

	str := func(name string) *string {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}

	patch.Description = str("description")
	patch.Model = str("model")
	patch.Color = str("color")
	patch.ArgumentHint = str("argument-hint")
	patch.Version = str("version")
	patch.License = str("license")
	patch.Body = str("body")

	if flags.Changed("tools") {
		tools, _ := flags.GetStringSlice("tools")
		patch.Tools = &tools
	}

	if flags.Changed("body-file") {
		if patch.Body != nil {
			return patch, errors.New("--body and --body-file are mutually exclusive")
		}
		path, _ := flags.GetString("body-file")
		body, err := readBody(cmd.InOrStdin(), path)
		if err != nil {
			return patch, err
		}
		patch.Body = &body
	}
	return patch, nil
}

func readBody(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read body")
	}
	return string(data), nil
}

func scopeFlag(cmd *cobra.Command) (artifact.Scope, error) {
	s, _ := cmd.Flags().GetString("scope")
	return artifact.ParseScope(s)
}

// lookupScope returns the scope of the named artifact. Without --scope the
// catalog is searched and the name must be unambiguous.
func lookupScope(ctx context.Context, cmd *cobra.Command, b *builder.Builder, name string) (artifact.Scope, error) {
	if cmd.Flags().Changed("scope") {
		return scopeFlag(cmd)
	}

	entries, err := b.List(ctx, catalog.Filter{})
	if err != nil {
		return "", err
	}
	var found []artifact.Scope
	for _, e := range entries {
		if e.Name == name {
			found = append(found, e.Scope)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.Wrapf(catalog.ErrNotFound, "%s %q", b.Kind(), name)
	case 1:
		return found[0], nil
	default:
		return "", errors.Errorf("%s %q exists in several scopes, pass --scope", b.Kind(), name)
	}
}

func newCreateCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: fmt.Sprintf("Create a %s", kind),
		Example: fmt.Sprintf(`  agentkit %[1]s create reviewer -d "Reviews diffs" --tools Read,Grep
  agentkit %[1]s create reviewer -d "Reviews diffs" --body-file prompt.md --scope global
  agentkit %[1]s create reviewer -d "Reviews diffs" --dry-run`, kind),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}

			spec := builder.SpecFromDocument(kind, scope, args[0], &artifact.Document{Frontmatter: map[string]any{}})
			if err := patch.Apply(spec); err != nil {
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			result, err := a.builder(kind).Create(ctx, spec, builder.CreateOptions{Force: force, DryRun: dryRun})
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", kind)
			}

			if dryRun {
				a.out.Section(result.Path)
				a.out.Info("%s", strings.TrimRight(result.Content, "\n"))
				return nil
			}
			a.out.Success("Created %s %q at %s", kind, args[0], result.Path)
			return nil
		},
	}

	addFieldFlags(cmd.Flags(), kind)
	cmd.Flags().StringP("scope", "s", string(artifact.ScopeProject), "Scope (global, project or local)")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing "+string(kind))
	cmd.Flags().Bool("dry-run", false, "Print the rendered file without writing it")
	return cmd
}

func newUpdateCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: fmt.Sprintf("Update fields of a %s", kind),
		Long: fmt.Sprintf(`Update fields of an existing %s. Only the flags given are changed;
the file is re-validated and re-rendered.`, kind),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b := a.builder(kind)
			scope, err := lookupScope(ctx, cmd, b, args[0])
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return errors.New("nothing to update, pass at least one field flag")
			}

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			result, err := b.Update(ctx, args[0], scope, patch, builder.UpdateOptions{DryRun: dryRun})
			if err != nil {
				return errors.Wrapf(err, "failed to update %s", kind)
			}

			if result.Diff == "" {
				a.out.Info("%s %q is unchanged", kind, args[0])
				return nil
			}
			a.out.Diff(result.Diff)
			if dryRun {
				return nil
			}
			a.out.Success("Updated %s %q", kind, args[0])
			return nil
		},
	}

	addFieldFlags(cmd.Flags(), kind)
	cmd.Flags().StringP("scope", "s", string(artifact.ScopeProject), "Scope (global, project or local)")
	cmd.Flags().Bool("dry-run", false, "Print the diff without writing")
	return cmd
}

func newDeleteCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   fmt.Sprintf("Delete a %s and its catalog entry", kind),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b := a.builder(kind)
			scope, err := lookupScope(ctx, cmd, b, args[0])
			if err != nil {
				return err
			}
			keep, _ := cmd.Flags().GetBool("keep-files")
			if err := b.Delete(ctx, args[0], scope, builder.DeleteOptions{KeepFiles: keep}); err != nil {
				return errors.Wrapf(err, "failed to delete %s", kind)
			}
			a.out.Success("Deleted %s %q from %s scope", kind, args[0], scope)
			return nil
		},
	}
	cmd.Flags().StringP("scope", "s", string(artifact.ScopeProject), "Scope (global, project or local)")
	cmd.Flags().Bool("keep-files", false, "Only remove the catalog entry")
	return cmd
}

func listFilter(cmd *cobra.Command) (catalog.Filter, error) {
	if !cmd.Flags().Changed("scope") {
		return catalog.Filter{}, nil
	}
	scope, err := scopeFlag(cmd)
	return catalog.Filter{Scope: scope}, err
}

func newListCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   fmt.Sprintf("List cataloged %s", kind.Plural()),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := listFilter(cmd)
			if err != nil {
				return err
			}
			entries, err := a.builder(kind).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printEntries(cmd, a, kind, entries)
		},
	}
	cmd.Flags().StringP("scope", "s", "", "Only list this scope")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func newSearchCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: fmt.Sprintf("Search %s by name, description and metadata", kind.Plural()),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := listFilter(cmd)
			if err != nil {
				return err
			}
			entries, err := a.builder(kind).Search(cmd.Context(), strings.Join(args, " "), filter)
			if err != nil {
				return err
			}
			return printEntries(cmd, a, kind, entries)
		},
	}
	cmd.Flags().StringP("scope", "s", "", "Only search this scope")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func printEntries(cmd *cobra.Command, a *app, kind artifact.Kind, entries []catalog.Entry) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		a.out.Info("No %s found", kind.Plural())
		return nil
	}
	return printEntryTable(cmd.OutOrStdout(), entries)
}

func newShowCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: fmt.Sprintf("Print a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b := a.builder(kind)
			scope, err := lookupScope(ctx, cmd, b, args[0])
			if err != nil {
				return err
			}
			doc, err := b.Read(ctx, args[0], scope)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(doc.Path)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", doc.Path)
			}

			if renderMD, _ := cmd.Flags().GetBool("render"); renderMD {
				out, err := renderMarkdown(doc)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), string(content))
			return nil
		},
	}
	cmd.Flags().StringP("scope", "s", string(artifact.ScopeProject), "Scope (global, project or local)")
	cmd.Flags().Bool("render", false, "Render the Markdown for the terminal")
	return cmd
}

func newValidateCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: fmt.Sprintf("Validate %s files", kind),
		Long: fmt.Sprintf(`Parse and validate %s files, running the security checks on every
field. Without arguments every %s found on disk is checked.`, kind, kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.builder(kind).Validate(cmd.Context(), args...)
			if report != nil {
				a.out.Info("Checked %d %s, %d failed", len(report.Checked), kind.Plural(), len(report.Failed))
			}
			if err != nil {
				return err
			}
			if report != nil && len(report.Checked) > 0 {
				a.out.Success("All %s are valid", kind.Plural())
			}
			return nil
		},
	}
	return cmd
}

func newSyncCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: fmt.Sprintf("Reconcile the %s catalog with the files on disk", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			values, _ := cmd.Flags().GetStringSlice("scope")
			scopes, err := artifact.ParseScopes(values)
			if err != nil {
				return err
			}
			result, err := a.builder(kind).Sync(cmd.Context(), scopes...)
			if err != nil {
				return errors.Wrapf(err, "failed to sync %s catalog", kind)
			}
			printSyncResult(a, kind, result)
			return nil
		},
	}
	cmd.Flags().StringSliceP("scope", "s", nil, "Scopes to sync (default all)")
	return cmd
}

func printSyncResult(a *app, kind artifact.Kind, result catalog.SyncResult) {
	if !result.Changed() {
		a.out.Info("%s catalog is up to date", kind)
		return
	}
	for _, key := range result.Added {
		a.out.Info("+ %s", key)
	}
	for _, key := range result.Updated {
		a.out.Info("~ %s", key)
	}
	for _, key := range result.Removed {
		a.out.Info("- %s", key)
	}
	a.out.Success("Synced %s catalog: %d added, %d updated, %d removed",
		kind, len(result.Added), len(result.Updated), len(result.Removed))
}

func newWizardCmd(a *app, kind artifact.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: fmt.Sprintf("Create a %s interactively", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accessible, _ := cmd.Flags().GetBool("accessible")
			w := wizard.New(a.builder(kind),
				wizard.WithOutput(cmd.OutOrStdout()),
				wizard.WithAccessible(accessible || os.Getenv("ACCESSIBLE") != ""),
			)
			result, err := w.Run(cmd.Context())
			if errors.Is(err, wizard.ErrAborted) {
				a.out.Warning("Aborted")
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", kind)
			}
			a.out.Success("Created %s at %s", kind, result.Path)
			return nil
		},
	}
	cmd.Flags().Bool("accessible", false, "Use prompts that work with screen readers")
	return cmd
}
