package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and repair the artifact catalogs",
		Long: `Each kind has a JSON catalog in the data directory. Writes are atomic and the
previous file is kept as <catalog>.bak.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newCatalogSchemaCmd(),
		newCatalogVerifyCmd(a),
		newCatalogRestoreCmd(a),
		newCatalogStatsCmd(a),
	)
	return cmd
}

// kindsFlag returns the kinds selected by --kind, all kinds when unset
func kindsFlag(cmd *cobra.Command) ([]artifact.Kind, error) {
	values, _ := cmd.Flags().GetStringSlice("kind")
	if len(values) == 0 {
		return artifact.Kinds, nil
	}
	result := make([]artifact.Kind, 0, len(values))
	for _, v := range values {
		k, err := artifact.ParseKind(v)
		if err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	return result, nil
}

func addKindFlag(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("kind", "k", nil, "Kinds to operate on (skill, command, agent; default all)")
}

func newCatalogSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of catalog files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := catalog.Schema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

func newCatalogVerifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check catalogs against the schema and the files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := kindsFlag(cmd)
			if err != nil {
				return err
			}

			failed := 0
			for _, kind := range kinds {
				report, err := a.builder(kind).Catalog().Verify(cmd.Context())
				if err != nil {
					return err
				}
				if report.OK() {
					a.out.Success("%s catalog is valid", kind)
					continue
				}
				failed++
				a.out.Warning("%s catalog %s has problems", kind, report.Path)
				for _, e := range report.SchemaErrors {
					a.out.Info("  schema: %s", e)
				}
				for _, key := range report.Duplicates {
					a.out.Info("  duplicate: %s", key)
				}
				for _, e := range report.Missing {
					a.out.Info("  missing file: %s (%s)", e.Key(), e.Path)
				}
			}
			if failed > 0 {
				return errors.Errorf("%d catalog(s) failed verification", failed)
			}
			return nil
		},
	}
	addKindFlag(cmd)
	return cmd
}

func newCatalogRestoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace catalogs with their .bak copies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := kindsFlag(cmd)
			if err != nil {
				return err
			}
			for _, kind := range kinds {
				cat := a.builder(kind).Catalog()
				if err := cat.Restore(cmd.Context()); err != nil {
					return errors.Wrapf(err, "failed to restore %s catalog", kind)
				}
				a.out.Success("Restored %s from %s", cat.Path(), cat.BackupPath())
			}
			return nil
		},
	}
	addKindFlag(cmd)
	return cmd
}

func newCatalogStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count catalog entries per scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := kindsFlag(cmd)
			if err != nil {
				return err
			}

			var all []*catalog.Stats
			for _, kind := range kinds {
				stats, err := a.builder(kind).Catalog().Stats(cmd.Context())
				if err != nil {
					return err
				}
				all = append(all, stats)
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), all)
			}
			for _, s := range all {
				a.out.Info("%-8s total=%d global=%d project=%d local=%d",
					s.Kind, s.Total,
					s.ByScope[artifact.ScopeGlobal], s.ByScope[artifact.ScopeProject], s.ByScope[artifact.ScopeLocal])
			}
			return nil
		},
	}
	addKindFlag(cmd)
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}
