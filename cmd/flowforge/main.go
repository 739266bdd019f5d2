// Command flowforge is the CLI/RPC entrypoint shim: it wires the feature
// registry, workspace manager, parallel executor, merge orchestrator, local
// cache, and sync engine together for manual operation and for exercising
// the tool-dispatch envelope from a shell. The chat UI and phone client
// spec.md describes are out of scope; they are expected to speak the same
// RPC contract this binary's "serve" mode exposes indirectly via the cache.
package main

func main() {
	Execute()
}
