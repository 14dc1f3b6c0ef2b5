package client

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/smnsjas/go-srsclient/messages"
)

// CreateRunspace requests a new runspace. The service answers immediately with
// the runspace in the Creating state.
func (c *Client) CreateRunspace(ctx context.Context, req messages.Runspace) (*messages.Runspace, error) {
	var rs messages.Runspace
	if err := c.Do(ctx, fiber.MethodPost, messages.PathRunspaces, req, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// GetRunspace fetches the current state of a runspace.
func (c *Client) GetRunspace(ctx context.Context, id string) (*messages.Runspace, error) {
	var rs messages.Runspace
	if err := c.Do(ctx, fiber.MethodGet, messages.RunspacePath(id), nil, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// ListRunspaces lists the caller's runspaces.
func (c *Client) ListRunspaces(ctx context.Context) ([]messages.Runspace, error) {
	var list []messages.Runspace
	if err := c.Do(ctx, fiber.MethodGet, messages.PathRunspaces, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteRunspace releases a runspace.
func (c *Client) DeleteRunspace(ctx context.Context, id string) error {
	return c.Do(ctx, fiber.MethodDelete, messages.RunspacePath(id), nil, nil)
}

// CreateScriptExecution submits a script. The service answers immediately with
// the execution in the Running state.
func (c *Client) CreateScriptExecution(ctx context.Context, req messages.ScriptExecution) (*messages.ScriptExecution, error) {
	var se messages.ScriptExecution
	if err := c.Do(ctx, fiber.MethodPost, messages.PathScriptExecutions, req, &se); err != nil {
		return nil, err
	}
	return &se, nil
}

// GetScriptExecution fetches the current state of a script execution.
func (c *Client) GetScriptExecution(ctx context.Context, id string) (*messages.ScriptExecution, error) {
	var se messages.ScriptExecution
	if err := c.Do(ctx, fiber.MethodGet, messages.ScriptExecutionPath(id), nil, &se); err != nil {
		return nil, err
	}
	return &se, nil
}

// ListScriptExecutions lists the caller's script executions.
func (c *Client) ListScriptExecutions(ctx context.Context) ([]messages.ScriptExecution, error) {
	var list []messages.ScriptExecution
	if err := c.Do(ctx, fiber.MethodGet, messages.PathScriptExecutions, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetScriptExecutionOutput fetches the output objects of a finished execution,
// rendered in the execution's output format.
func (c *Client) GetScriptExecutionOutput(ctx context.Context, id string) ([]string, error) {
	out := []string{}
	if err := c.Do(ctx, fiber.MethodGet, messages.OutputPath(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetScriptExecutionStream fetches one data stream of an execution.
func (c *Client) GetScriptExecutionStream(ctx context.Context, id string, stream messages.StreamType) ([]messages.StreamRecord, error) {
	records := []messages.StreamRecord{}
	if err := c.Do(ctx, fiber.MethodGet, messages.StreamPath(id, stream), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CancelScriptExecution asks the service to stop a running execution.
func (c *Client) CancelScriptExecution(ctx context.Context, id string) error {
	return c.Do(ctx, fiber.MethodPost, messages.CancelPath(id), nil, nil)
}
