// Package netstack gates the pipeline on IP-stack readiness.
//
// The network engine is an external collaborator: it owns link-layer and
// address state and publishes them through the Readiness contract. Its pump
// (Engine.Run) runs as an independent task. The Gate only polls that state
// and never changes it.
//
// Readiness has no failure path. An unreachable network is "not yet ready"
// and is polled at a fixed interval for as long as it takes.
package netstack
