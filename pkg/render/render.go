// Package render produces artifact Markdown from templates. Templates run in
// a restricted text/template environment: no access to the process
// environment, the network or the filesystem, missing keys are errors, and
// output size is bounded.
package render

import (
	"bytes"
	"context"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/logger"
)

//go:embed templates/*.md.tmpl
var builtinTemplates embed.FS

// DefaultMaxOutput is the default cap on rendered output size
const DefaultMaxOutput = 1 << 20

// ErrOutputTooLarge is returned when a template produces more than the allowed output
var ErrOutputTooLarge = errors.New("rendered output exceeds size limit")

// functions removed from the sprig function map
var deniedFuncs = []string{
	"env", "expandenv", "getHostByName",
	"randAlpha", "randAlphaNum", "randAscii", "randNumeric", "randBytes", "randInt", "uuidv4",
	"genPrivateKey", "derivePassword", "buildCustomCert",
	"genCA", "genCAWithKey", "genSelfSignedCert", "genSelfSignedCertWithKey",
	"genSignedCert", "genSignedCertWithKey", "encryptAES", "decryptAES",
}

// Renderer renders artifact templates
type Renderer struct {
	overrideDir string
	maxOutput   int
	funcs       template.FuncMap
}

// Option configures a Renderer
type Option func(*Renderer)

// WithOverrideDir sets a directory whose <kind>.md.tmpl files replace the builtin templates
func WithOverrideDir(dir string) Option {
	return func(r *Renderer) {
		r.overrideDir = dir
	}
}

// WithMaxOutput sets the maximum rendered size in bytes
func WithMaxOutput(n int) Option {
	return func(r *Renderer) {
		r.maxOutput = n
	}
}

// New creates a Renderer
func New(opts ...Option) *Renderer {
	r := &Renderer{
		maxOutput: DefaultMaxOutput,
		funcs:     FuncMap(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FuncMap returns the sandboxed template function map
func FuncMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	for _, name := range deniedFuncs {
		delete(funcs, name)
	}
	funcs["yaml"] = yamlValue
	return funcs
}

// Template returns the template source for kind, preferring an override file
func (r *Renderer) Template(kind artifact.Kind) (string, error) {
	name := string(kind) + ".md.tmpl"

	if r.overrideDir != "" {
		content, err := os.ReadFile(filepath.Join(r.overrideDir, name))
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "failed to read template override %s", name)
		}
	}

	content, err := builtinTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", errors.Errorf("no template for kind %q", kind)
	}
	return string(content), nil
}

// Render renders the template of kind with data
func (r *Renderer) Render(ctx context.Context, kind artifact.Kind, data any) (string, error) {
	text, err := r.Template(kind)
	if err != nil {
		return "", err
	}
	return r.RenderString(ctx, string(kind), text, data)
}

// RenderString renders an arbitrary template source with data
func (r *Renderer) RenderString(ctx context.Context, name, text string, data any) (string, error) {
	logger.G(ctx).WithField("template", name).Debug("rendering template")

	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse template %s", name)
	}

	w := &limitedWriter{max: r.maxOutput}
	if err := tmpl.Execute(w, data); err != nil {
		if errors.Is(err, ErrOutputTooLarge) {
			return "", errors.Wrapf(ErrOutputTooLarge, "template %s", name)
		}
		return "", errors.Wrapf(err, "failed to execute template %s", name)
	}

	return w.buf.String(), nil
}

type limitedWriter struct {
	buf bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.max > 0 && w.buf.Len()+len(p) > w.max {
		return 0, ErrOutputTooLarge
	}
	return w.buf.Write(p)
}

// yamlValue encodes v as an inline YAML value safe to place after "key: "
func yamlValue(v any) (string, error) {
	node := &yaml.Node{}
	if s, ok := v.(string); ok {
		node.Kind = yaml.ScalarNode
		node.Tag = "!!str"
		node.Value = s
		if strings.ContainsAny(s, "\n\r") {
			node.Style = yaml.DoubleQuotedStyle
		}
	} else {
		if err := node.Encode(v); err != nil {
			return "", errors.Wrap(err, "failed to encode yaml value")
		}
		if node.Kind == yaml.SequenceNode || node.Kind == yaml.MappingNode {
			node.Style = yaml.FlowStyle
		}
	}

	out, err := yaml.Marshal(node)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode yaml value")
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}
