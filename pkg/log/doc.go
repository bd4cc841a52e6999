// Package log provides structured connectivity event capture.
//
// This package defines the Logger interface and Event types for recording
// what the uplink does at each layer (link, stack, transport, session). It is
// separate from operational logging (slog): the capture is a machine-readable
// trace for offline analysis of field failures.
//
// # Basic Usage
//
//	// For development: mirror events to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// On the device: append to a binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/data/uplink.ulog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - StateChange: association, readiness and attempt state transitions
//   - Error: failures with the layer that produced them
//   - Data: application bytes exchanged over an established channel
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded events with integer keys,
// conventionally with the .ulog extension. The mash-uplink-log tool views
// and summarises them.
package log
