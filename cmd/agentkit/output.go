package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/catalog"
)

const maxDescriptionWidth = 60

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printEntryTable(w io.Writer, entries []catalog.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCOPE\tDESCRIPTION\tPATH")
	fmt.Fprintln(tw, "----\t-----\t-----------\t----")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Scope, truncate(e.Description, maxDescriptionWidth), e.Path)
	}
	return tw.Flush()
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// renderMarkdown renders the frontmatter as a table followed by the body
func renderMarkdown(doc *artifact.Document) (string, error) {
	keys := make([]string, 0, len(doc.Frontmatter))
	for k := range doc.Frontmatter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	if len(keys) > 0 {
		sb.WriteString("| Field | Value |\n| --- | --- |\n")
		for _, k := range keys {
			v := doc.String(k)
			if _, ok := doc.Frontmatter[k].([]any); ok {
				v = strings.Join(doc.Strings(k), ", ")
			}
			fmt.Fprintf(&sb, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", "\\|"))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(doc.Body)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to create markdown renderer")
	}
	out, err := renderer.Render(sb.String())
	if err != nil {
		return "", errors.Wrap(err, "failed to render markdown")
	}
	return out, nil
}
