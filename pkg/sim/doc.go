// Package sim provides simulated collaborators for host runs and tests: a
// radio that associates with a configurable success rate and drops the link
// at random, a network stack that acquires an address some polls after the
// link comes up, and a loopback TLS peer.
package sim
