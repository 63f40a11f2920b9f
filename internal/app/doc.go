// Package app contains the core application logic. It loads a wiring plan,
// runs it against an engine and reports the result, decoupled from any
// specific entrypoint like a CLI or server.
package app
