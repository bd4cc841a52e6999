package main

import (
	"log/slog"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/config"
	"github.com/mash-protocol/mash-uplink/pkg/sim"
)

// Simulation parameters.
const (
	simSuccessProbability = 0.8
	simConnectLatency     = 300 * time.Millisecond
	simMeanDropInterval   = 30 * time.Second
)

// simulation is the simulated radio, stack and remote peer.
type simulation struct {
	Radio *sim.Radio
	Stack *sim.Stack
	Peer  *sim.Peer
}

// startSimulation starts a loopback peer and points cfg at it, pinning the
// peer's certificate.
func startSimulation(cfg *config.Config, seed uint64, logger *slog.Logger) (*simulation, error) {
	peer, err := sim.StartPeer(sim.PeerConfig{
		CloseAfterGreeting: true,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	cfg.Remote.Address = peer.Addr().String()
	cfg.Remote.Verify.Mode = config.VerifyPinned
	cfg.Remote.Verify.Fingerprint = peer.Fingerprint().String()

	stack := sim.NewStack(sim.StackConfig{
		DHCPPolls: -1,
		Seed:      seed,
		Logger:    logger,
	})
	radio := sim.NewRadio(sim.RadioConfig{
		SuccessProbability: simSuccessProbability,
		ConnectLatency:     simConnectLatency,
		MeanDropInterval:   simMeanDropInterval,
		Stack:              stack,
		Seed:               seed,
		Logger:             logger,
	})

	logger.Info("simulation enabled",
		"peer", peer.Addr(),
		"fingerprint", peer.Fingerprint().String())

	return &simulation{Radio: radio, Stack: stack, Peer: peer}, nil
}

// Close stops the peer.
func (s *simulation) Close() error {
	return s.Peer.Close()
}
