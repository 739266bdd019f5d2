// Package rpc is the typed call-dispatch façade (spec.md §4.I): a tool
// table keyed by string name, each handler returning the same envelope
// shape so it round-trips through encoding/json for the wire protocol
// spec.md §6 describes. Grounded in spirit on the teacher's resolve-once,
// reuse memoization for per-project config/toolchain state (e.g.
// internal/rpi/toolchain.go), generalized here to a per-project-path
// cache of the constructed registry/workspace/executor/merge quartet.
package rpc

// Result is the envelope every tool handler returns.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(message string, data any) (Result, error) {
	return Result{Success: true, Message: message, Data: data}, nil
}

func fail(message string, data any) (Result, error) {
	return Result{Success: false, Message: message, Data: data}, nil
}
