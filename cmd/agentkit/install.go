package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/installer"
)

func newInstallCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <repo>[@ref]...",
		Short: "Install skills, commands and agents from git repositories",
		Long: `Clone a repository and install the artifacts it ships:

  skills/<name>/SKILL.md    skills (the whole directory is copied)
  commands/**/*.md          slash commands
  agents/*.md               subagents

Every artifact is validated before it is copied. Existing artifacts are
skipped unless --force is given.`,
		Example: `  agentkit install acme/assistant-kit
  agentkit install acme/assistant-kit@v1.2.0 --scope global
  agentkit install https://git.example.com/team/kit.git --kind skill`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			kinds, err := kindsFlag(cmd)
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")

			sources := make([]installer.Source, 0, len(args))
			for _, arg := range args {
				src, err := installer.ParseSource(arg)
				if err != nil {
					return err
				}
				sources = append(sources, src)
			}

			inst := installer.New(a.allBuilders())
			opts := installer.Options{Scope: scope, Kinds: kinds, Force: force}
			for _, src := range sources {
				report, err := inst.Install(ctx, src, opts)
				if err != nil {
					return errors.Wrapf(err, "failed to install %s", src)
				}

				a.out.Section(src.String() + " @ " + shortCommit(report.Commit))
				for _, item := range report.Installed {
					a.out.Success("%s %s -> %s", item.Kind, item.Name, item.Path)
				}
				for _, item := range report.Skipped {
					a.out.Warning("%s %s skipped: %s", item.Kind, item.Path, item.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("scope", "s", string(artifact.ScopeProject), "Scope to install into (global, project or local)")
	addKindFlag(cmd)
	cmd.Flags().BoolP("force", "f", false, "Replace artifacts that already exist")
	return cmd
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
