package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentkit/pkg/llmstxt"
)

func newLlmstxtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "llms.txt [section]",
		Short: "Display LLM-friendly usage guide",
		Long: `Display the llms.txt file which contains LLM-friendly documentation about agentkit usage.
Pass a section title, such as "scopes", to print only that section.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprint(cmd.OutOrStdout(), llmstxt.GetContent())
				return nil
			}
			section, err := llmstxt.Section(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), section)
			return nil
		},
	}
}
