package rpc

import "errors"

// ErrUnknownTool is returned by Dispatch for a name not in the tool table.
var ErrUnknownTool = errors.New("rpc: unknown tool")

// ErrMissingArgument is returned when a required argument is absent or
// the wrong type.
var ErrMissingArgument = errors.New("rpc: missing or malformed argument")
