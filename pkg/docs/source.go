// Package docs mirrors documentation sites into a local Markdown cache so
// that skills and agents can reference them offline.
package docs

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/validation"
)

// Default crawl limits
const (
	DefaultDelay    = time.Second
	DefaultMaxPages = 200
	DefaultMaxDepth = 3
	DefaultSelector = "main, article, [role=main], body"
)

// Source is a documentation site to mirror
type Source struct {
	Name string   `mapstructure:"name" json:"name" validate:"required,artifactname"`
	URLs []string `mapstructure:"urls" json:"urls" validate:"required,min=1,dive,url"`
	// Hosts lists extra host globs links may lead to (e.g. "*.example.com")
	Hosts []string `mapstructure:"hosts" json:"hosts,omitempty"`
	// Include and Exclude are path globs ("/docs/**"). An empty Include
	// accepts every path.
	Include  []string      `mapstructure:"include" json:"include,omitempty"`
	Exclude  []string      `mapstructure:"exclude" json:"exclude,omitempty"`
	MaxPages int           `mapstructure:"max_pages" json:"max_pages" validate:"gte=0"`
	MaxDepth int           `mapstructure:"max_depth" json:"max_depth" validate:"gte=0"`
	Selector string        `mapstructure:"selector" json:"selector,omitempty"`
	Delay    time.Duration `mapstructure:"delay" json:"delay,omitempty" validate:"gte=0"`
}

// withDefaults fills unset limits
func (s Source) withDefaults() Source {
	if s.MaxPages == 0 {
		s.MaxPages = DefaultMaxPages
	}
	if s.MaxDepth == 0 {
		s.MaxDepth = DefaultMaxDepth
	}
	if s.Selector == "" {
		s.Selector = DefaultSelector
	}
	return s
}

// DecodeSources converts the raw docs.sources configuration value. A single
// URL may be given as a string.
func DecodeSources(raw any) ([]Source, error) {
	if raw == nil {
		return nil, nil
	}

	var sources []Source
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToSliceHook,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &sources,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "invalid docs.sources")
	}

	seen := make(map[string]bool, len(sources))
	for i := range sources {
		if err := validation.Struct(&sources[i]); err != nil {
			return nil, errors.Wrapf(err, "docs source %d", i)
		}
		if seen[sources[i].Name] {
			return nil, errors.Errorf("duplicate docs source %q", sources[i].Name)
		}
		seen[sources[i].Name] = true
	}
	return sources, nil
}

func stringToSliceHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to.Kind() == reflect.Slice {
		return []string{reflect.ValueOf(data).String()}, nil
	}
	return data, nil
}

// Find returns the source called name
func Find(sources []Source, name string) (Source, error) {
	for _, s := range sources {
		if s.Name == name {
			return s, nil
		}
	}
	return Source{}, errors.Errorf("unknown docs source %q", name)
}
