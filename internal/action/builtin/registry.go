// Package builtin assembles the file, http, shell, transform, and utility
// actions into a single workflow.ActionRegistry, plus a "log" action with
// no standalone package of its own. Action names are "prefix.operation"
// (e.g. "http.get", "file.read"); the bare name "log" is the one exception.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/marktoflow/flowcore/internal/action/file"
	"github.com/marktoflow/flowcore/internal/action/http"
	"github.com/marktoflow/flowcore/internal/action/shell"
	"github.com/marktoflow/flowcore/internal/action/transform"
	"github.com/marktoflow/flowcore/internal/action/utility"
	"github.com/marktoflow/flowcore/internal/permissions"
	"github.com/marktoflow/flowcore/pkg/workflow"
)

// connector is the shape shared by file/http/shell/transform/utility:
// Execute an operation against a map of inputs, returning a Response bound
// to the step's output variable and a Metadata map describing the call.
type connector interface {
	Execute(ctx context.Context, operation string, inputs map[string]interface{}) (response interface{}, metadata map[string]interface{}, err error)
}

// Config configures every builtin action at once. A nil sub-config falls
// back to that action's own DefaultConfig.
type Config struct {
	File      *file.Config
	HTTP      *http.Config
	Shell     *shell.Config
	Transform *transform.Config
	Utility   *utility.Config
	// Logger receives entries emitted by the "log" action. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// Registry is a workflow.ActionRegistry backed by the builtin connectors.
type Registry struct {
	connectors map[string]connector
	logger     *slog.Logger
}

var _ workflow.ActionRegistry = (*Registry)(nil)

// NewRegistry builds a Registry with all five builtin actions loaded.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	fileAction, err := file.New(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("builtin registry: file action: %w", err)
	}
	httpAction, err := http.New(cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("builtin registry: http action: %w", err)
	}
	shellAction, err := shell.New(cfg.Shell)
	if err != nil {
		return nil, fmt.Errorf("builtin registry: shell action: %w", err)
	}
	transformAction, err := transform.New(cfg.Transform)
	if err != nil {
		return nil, fmt.Errorf("builtin registry: transform action: %w", err)
	}
	utilityAction, err := utility.New(cfg.Utility)
	if err != nil {
		return nil, fmt.Errorf("builtin registry: utility action: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger: logger,
		connectors: map[string]connector{
			"file":      fileConnector{fileAction},
			"http":      httpConnector{httpAction},
			"shell":     shellConnector{shellAction},
			"transform": transformConnector{transformAction},
			"utility":   utilityConnector{utilityAction},
		},
	}, nil
}

// Has reports whether name resolves to a loadable action.
func (r *Registry) Has(name string) bool {
	if name == "log" {
		return true
	}
	prefix, _, ok := splitAction(name)
	if !ok {
		return false
	}
	_, ok = r.connectors[prefix]
	return ok
}

// Load resolves name to the workflow.ActionFunc that runs it.
func (r *Registry) Load(name string) (workflow.ActionFunc, error) {
	if name == "log" {
		return r.logAction, nil
	}

	prefix, operation, ok := splitAction(name)
	if !ok {
		return nil, fmt.Errorf("invalid action reference %q: expected \"connector.operation\"", name)
	}
	conn, ok := r.connectors[prefix]
	if !ok {
		return nil, fmt.Errorf("unknown action connector %q", prefix)
	}

	return func(ctx context.Context, sec workflow.StepExecutorContext, inputs map[string]interface{}) (interface{}, error) {
		if err := enforcePermissions(ctx, prefix, operation, sec, inputs); err != nil {
			return nil, err
		}
		response, _, err := conn.Execute(ctx, operation, inputs)
		if err != nil {
			return nil, err
		}
		return response, nil
	}, nil
}

// splitAction splits "connector.operation" on the first dot.
func splitAction(name string) (connectorName, operation string, ok bool) {
	idx := strings.Index(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// enforcePermissions applies the step's effective permissions to the
// connector/operation about to run, ahead of the connector ever touching
// the filesystem, network, or a shell.
func enforcePermissions(ctx context.Context, connectorName, operation string, sec workflow.StepExecutorContext, inputs map[string]interface{}) error {
	permCtx := permissions.NewPermissionContext(sec.Permissions)

	switch connectorName {
	case "shell":
		cmd, _ := inputs["command"].(string)
		return permissions.CheckShell(permCtx, cmd)
	case "http":
		rawURL, _ := inputs["url"].(string)
		if rawURL == "" {
			return nil
		}
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" {
			return nil
		}
		return permissions.CheckNetwork(ctx, permCtx, parsed.Host)
	case "file":
		path := firstString(inputs, "path", "source", "destination")
		if path == "" {
			return nil
		}
		if isWriteOperation(operation) {
			return permissions.CheckPathWrite(permCtx, path)
		}
		return permissions.CheckPathRead(permCtx, path)
	default:
		return nil
	}
}

func firstString(inputs map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := inputs[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func isWriteOperation(operation string) bool {
	switch operation {
	case "write", "write_text", "write_json", "write_yaml", "append", "mkdir", "copy", "move", "delete":
		return true
	default:
		return false
	}
}

// logAction implements the "log" builtin: it writes a structured record to
// the registry's logger and returns it unchanged so a step can bind it to
// an output variable for chaining.
func (r *Registry) logAction(ctx context.Context, sec workflow.StepExecutorContext, inputs map[string]interface{}) (interface{}, error) {
	level := slog.LevelInfo
	if lv, ok := inputs["level"].(string); ok {
		switch strings.ToLower(lv) {
		case "debug":
			level = slog.LevelDebug
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	message, _ := inputs["message"].(string)

	attrs := []any{slog.String("run_id", sec.RunID), slog.String("step_id", sec.StepID)}
	for k, v := range inputs {
		if k == "level" || k == "message" {
			continue
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.Log(ctx, level, message, attrs...)

	return map[string]interface{}{"logged": true, "message": message}, nil
}
