package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jingkaihe/agentkit/pkg/osutil"
)

// Schema returns the JSON Schema of a catalog file
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Catalog{})
	// the reflected schema only uses draft-07 keywords
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Title = "agentkit catalog"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode catalog schema")
	}
	return data, nil
}

// Report is the outcome of Verify
type Report struct {
	Path         string   `json:"path"`
	SchemaErrors []string `json:"schema_errors"`
	Duplicates   []string `json:"duplicates"`
	Missing      []Entry  `json:"missing"`
}

// OK reports whether verification found no problems
func (r *Report) OK() bool {
	return len(r.SchemaErrors) == 0 && len(r.Duplicates) == 0 && len(r.Missing) == 0
}

// Verify checks the catalog file against Schema, looks for duplicate
// identities and lists entries whose file is gone. A missing catalog file
// verifies cleanly.
func (m *Manager) Verify(ctx context.Context) (*Report, error) {
	report := &Report{Path: m.path, SchemaErrors: []string{}, Duplicates: []string{}, Missing: []Entry{}}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return nil, errors.Wrapf(err, "failed to read catalog %s", m.path)
	}

	schema, err := Schema()
	if err != nil {
		return nil, err
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to validate catalog %s", m.path)
	}
	for _, re := range result.Errors() {
		report.SchemaErrors = append(report.SchemaErrors, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	if !result.Valid() {
		return report, nil
	}

	cat, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(cat.Entries))
	for _, e := range cat.Entries {
		if seen[e.Key()] {
			report.Duplicates = append(report.Duplicates, e.Key())
		}
		seen[e.Key()] = true
		if !filepath.IsAbs(e.Path) || !osutil.Exists(e.Path) {
			report.Missing = append(report.Missing, e)
		}
	}
	return report, nil
}
