package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/osutil"
)

// Execute runs every hook registered for payload.Event in order and
// returns the combined error of those that failed
func (m *Manager) Execute(ctx context.Context, payload Payload) error {
	hooks := m.Hooks(payload.Event)
	if len(hooks) == 0 {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal hook payload")
	}

	var result *multierror.Error
	for _, hook := range hooks {
		if err := m.run(ctx, hook, data); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Fire runs the hooks for payload and logs failures
func (m *Manager) Fire(ctx context.Context, payload Payload) {
	if err := m.Execute(ctx, payload); err != nil {
		logger.G(ctx).WithError(err).WithField("event", payload.Event).Warn("hook execution failed")
	}
}

func (m *Manager) run(ctx context.Context, hook *Hook, payload []byte) error {
	timeout := m.timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, hook.Path, "run")
	cmd.Stdin = bytes.NewReader(payload)
	osutil.KillGroupOnCancel(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Errorf("hook %s timed out after %s", hook.Name, timeout)
		}
		return errors.Wrapf(err, "hook %s failed: %s", hook.Name, bytes.TrimSpace(stderr.Bytes()))
	}

	logger.G(ctx).WithField("hook", hook.Name).WithField("output", stdout.String()).Debug("hook completed")
	return nil
}
