// Package exchange implements the bootstrap assigner: stateless
// client-to-engine assignment and shared-secret authentication. The engine
// registry and secret are explicit constructor arguments rather than
// ambient module state, so an Exchange is trivially constructible in tests.
package exchange

import (
	"crypto/subtle"
	"errors"
	"math/rand"

	"github.com/rs/zerolog/log"
)

var ErrNoEngines = errors.New("NO_ENGINES_REGISTERED")

// EngineInfo is one matching engine the Exchange can hand a client to.
// Location is carried for a future nearest-by-location policy; the
// baseline policy ignores it.
type EngineInfo struct {
	ID       string
	Location string
	Address  string
}

// Exchange is a stateless view of the cluster's engine roster plus the
// shared secret every engine also authenticates RegisterClient against.
type Exchange struct {
	sharedSecret string
	engines      []EngineInfo
}

// New constructs an Exchange over the given engine roster.
func New(sharedSecret string, engines []EngineInfo) *Exchange {
	return &Exchange{sharedSecret: sharedSecret, engines: engines}
}

// AssignClient picks an engine for a client arriving from location.
// Baseline policy is uniform random; location is accepted but not yet
// consulted.
func (x *Exchange) AssignClient(location string) (string, error) {
	if len(x.engines) == 0 {
		return "", ErrNoEngines
	}
	chosen := x.engines[rand.Intn(len(x.engines))]
	log.Info().Str("engine_id", chosen.ID).Str("location", location).Msg("assigned client to engine")
	return chosen.Address, nil
}

// Authenticate performs a constant-time comparison of secret against the
// configured shared secret, the same crypto/subtle idiom
// MatchEngine.RegisterClient uses.
func (x *Exchange) Authenticate(clientID, secret string) bool {
	ok := subtle.ConstantTimeCompare([]byte(secret), []byte(x.sharedSecret)) == 1
	if ok {
		log.Info().Str("client_id", clientID).Msg("authenticated client")
	} else {
		log.Warn().Str("client_id", clientID).Msg("authentication failed")
	}
	return ok
}
