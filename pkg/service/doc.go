// Package service wires the uplink's tasks into one device process.
//
// A Service runs three tasks concurrently:
//   - the network engine pump
//   - the link supervisor, which keeps the radio associated
//   - the connection loop, which waits for stack readiness once and then
//     drives session attempts forever
//
// Example usage:
//
//	cfg, _ := config.Load()
//	svc, err := service.New(cfg, service.Dependencies{
//		Radio:   radio,
//		Stack:   stack,
//		Entropy: source,
//	})
//	err = svc.Run(ctx) // blocks; nil after ctx is cancelled
//
// A fatal radio failure cancels the other tasks and is returned from Run.
// Every other failure is logged and retried by the task that owns it.
package service
