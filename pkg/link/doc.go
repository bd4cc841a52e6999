// Package link keeps the wireless station associated with its access point.
//
// The Supervisor is the only writer of the association state. It drives the
// radio through the Radio contract and publishes state changes; other tasks
// observe the state through Supervisor.State and never modify it.
//
// # Supervision Loop
//
//  1. Connected: wait for a StaDisconnected event, then cool down (5 seconds).
//  2. Radio not started: configure the client credentials and start the radio.
//     Failure here is fatal; there is no recovery below driver bring-up.
//  3. Connect. On failure, log the cause and cool down (5 seconds).
//
// The cooldown is fixed and applies to every failure regardless of cause or
// how often it repeats.
package link
