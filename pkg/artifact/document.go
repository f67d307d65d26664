package artifact

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"
)

// Document is a Markdown file with YAML frontmatter
type Document struct {
	Path        string
	Frontmatter map[string]any
	Body        string
}

// ReadDocument loads and parses a document from disk
func ReadDocument(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	doc, err := ParseDocument(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	doc.Path = path
	return doc, nil
}

// ParseDocument parses frontmatter and body from Markdown content
func ParseDocument(content []byte) (*Document, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}
	if len(metaData) == 0 {
		return nil, errors.New("missing frontmatter")
	}

	fm, _ := normalize(metaData).(map[string]any)
	return &Document{
		Frontmatter: fm,
		Body:        extractBodyContent(string(content)),
	}, nil
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}

// normalize converts the map[interface{}]interface{} values produced by the
// frontmatter parser into JSON-friendly map[string]any values.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// String returns a frontmatter value as a string
func (d *Document) String(key string) string {
	switch v := d.Frontmatter[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns a frontmatter list, accepting both YAML sequences and
// comma-separated strings
func (d *Document) Strings(key string) []string {
	switch v := d.Frontmatter[key].(type) {
	case []any:
		var result []string
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				result = append(result, strings.TrimSpace(str))
			}
		}
		return result
	case []string:
		return v
	case string:
		return SplitList(v)
	default:
		return nil
	}
}

// SplitList splits a comma-separated list, ignoring commas inside
// parentheses so that entries like "Bash(a, b)" stay intact
func SplitList(s string) []string {
	var (
		result []string
		depth  int
		start  int
	)
	push := func(item string) {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				push(s[start:i])
				start = i + 1
			}
		}
	}
	push(s[start:])
	return result
}

// Compose renders frontmatter and body into Markdown. Keys listed in order
// come first; remaining keys follow alphabetically. Nil and empty values
// are omitted.
func Compose(frontmatter map[string]any, order []string, body string) (string, error) {
	keys := make([]string, 0, len(frontmatter))
	seen := make(map[string]bool, len(frontmatter))
	for _, k := range order {
		if _, ok := frontmatter[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range frontmatter {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		v := frontmatter[k]
		if isEmpty(v) {
			continue
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(v); err != nil {
			return "", errors.Wrapf(err, "failed to encode frontmatter key %q", k)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			valueNode,
		)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(root.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return "", errors.Wrap(err, "failed to encode frontmatter")
		}
		if err := enc.Close(); err != nil {
			return "", errors.Wrap(err, "failed to encode frontmatter")
		}
	}
	buf.WriteString("---\n")
	if body = strings.TrimLeft(body, "\n"); body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.String(), nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
