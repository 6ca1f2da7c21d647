package builtin

import (
	"context"

	"github.com/marktoflow/flowcore/internal/action/file"
	"github.com/marktoflow/flowcore/internal/action/http"
	"github.com/marktoflow/flowcore/internal/action/shell"
	"github.com/marktoflow/flowcore/internal/action/transform"
	"github.com/marktoflow/flowcore/internal/action/utility"
)

// Each builtin action package defines its own *Result{Response, Metadata}
// type to avoid an import cycle with a shared result type. These adapters
// flatten that per-package Result down to the connector interface's plain
// return values.

type fileConnector struct{ action *file.FileConnector }

func (c fileConnector) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (interface{}, map[string]interface{}, error) {
	res, err := c.action.Execute(ctx, operation, inputs)
	if err != nil {
		return nil, nil, err
	}
	return res.Response, res.Metadata, nil
}

type httpConnector struct{ action *http.HTTPAction }

func (c httpConnector) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (interface{}, map[string]interface{}, error) {
	res, err := c.action.Execute(ctx, operation, inputs)
	if err != nil {
		return nil, nil, err
	}
	return res.Response, res.Metadata, nil
}

type shellConnector struct{ action *shell.ShellConnector }

func (c shellConnector) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (interface{}, map[string]interface{}, error) {
	res, err := c.action.Execute(ctx, operation, inputs)
	if err != nil {
		return nil, nil, err
	}
	return res.Response, res.Metadata, nil
}

type transformConnector struct{ action *transform.TransformConnector }

func (c transformConnector) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (interface{}, map[string]interface{}, error) {
	res, err := c.action.Execute(ctx, operation, inputs)
	if err != nil {
		return nil, nil, err
	}
	return res.Response, res.Metadata, nil
}

type utilityConnector struct{ action *utility.UtilityAction }

func (c utilityConnector) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (interface{}, map[string]interface{}, error) {
	res, err := c.action.Execute(ctx, operation, inputs)
	if err != nil {
		return nil, nil, err
	}
	return res.Response, res.Metadata, nil
}
