package hooks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const queryTimeout = 5 * time.Second

// Discovery finds hook executables in an ordered list of directories
type Discovery struct {
	hookDirs []string
}

// DiscoveryOption configures a Discovery
type DiscoveryOption func(*Discovery) error

// WithDefaultDirs searches ./.agentkit/hooks then <dataDir>/hooks
func WithDefaultDirs(dataDir string) DiscoveryOption {
	return func(d *Discovery) error {
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return errors.Wrap(err, "failed to get user home directory")
			}
			dataDir = filepath.Join(home, ".agentkit")
		}
		d.hookDirs = []string{
			filepath.Join(".", ".agentkit", "hooks"),
			filepath.Join(dataDir, "hooks"),
		}
		return nil
	}
}

// WithHookDirs sets the directories to search, highest precedence first
func WithHookDirs(dirs ...string) DiscoveryOption {
	return func(d *Discovery) error {
		d.hookDirs = dirs
		return nil
	}
}

// NewDiscovery returns a Discovery, using the default directories when no
// option is given
func NewDiscovery(opts ...DiscoveryOption) (*Discovery, error) {
	if len(opts) == 0 {
		opts = []DiscoveryOption{WithDefaultDirs("")}
	}
	d := &Discovery{}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DiscoverHooks returns the executables of every hook directory keyed by
// the type they report. A name found in an earlier directory shadows the
// same name in later ones.
func (d *Discovery) DiscoverHooks() (map[HookType][]*Hook, error) {
	hooks := make(map[HookType][]*Hook)
	seen := make(map[string]bool)

	for _, dir := range d.hookDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to read hook directory %s", dir)
		}

		for _, entry := range entries {
			if entry.IsDir() || seen[entry.Name()] {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.Mode()&0o111 == 0 {
				continue
			}
			seen[entry.Name()] = true

			path := filepath.Join(dir, entry.Name())
			hookType, err := queryHookType(path)
			if err != nil {
				continue
			}
			hooks[hookType] = append(hooks[hookType], &Hook{
				Name:     entry.Name(),
				Path:     path,
				HookType: hookType,
			})
		}
	}

	return hooks, nil
}

func queryHookType(path string) (HookType, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "hook").Output()
	if err != nil {
		return "", errors.Wrapf(err, "failed to query hook type of %s", path)
	}

	hookType := HookType(strings.TrimSpace(string(output)))
	if !slices.Contains(HookTypes, hookType) {
		return "", errors.Errorf("invalid hook type %q", hookType)
	}
	return hookType, nil
}
