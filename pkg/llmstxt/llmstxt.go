// Package llmstxt embeds the llms.txt usage guide, written for an assistant
// that drives agentkit on the user's behalf.
package llmstxt

import (
	_ "embed"
	"strings"

	"github.com/pkg/errors"
)

//go:embed llms.txt
var content string

// GetContent returns the full guide
func GetContent() string {
	return content
}

// Section returns the "## title" section of the guide, heading included.
// Titles match case-insensitively.
func Section(title string) (string, error) {
	want := strings.ToLower(strings.TrimSpace(title))
	lines := strings.SplitAfter(content, "\n")

	start := -1
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(line, "## ") {
			continue
		}
		if start >= 0 {
			return strings.TrimRight(strings.Join(lines[start:i], ""), "\n") + "\n", nil
		}
		if strings.ToLower(strings.TrimSpace(line[3:])) == want {
			start = i
		}
	}
	if start >= 0 {
		return strings.TrimRight(strings.Join(lines[start:], ""), "\n") + "\n", nil
	}
	return "", errors.Errorf("no section %q in llms.txt", title)
}
