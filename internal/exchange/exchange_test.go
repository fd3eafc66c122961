package exchange_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu-labs/meridian/internal/exchange"
)

func TestAssignClient_PicksAKnownEngine(t *testing.T) {
	x := exchange.New("sekret", []exchange.EngineInfo{
		{ID: "e1", Address: "10.0.0.1:9000"},
		{ID: "e2", Address: "10.0.0.2:9000"},
	})

	addr, err := x.AssignClient("us-east")
	require.NoError(t, err)
	assert.Contains(t, []string{"10.0.0.1:9000", "10.0.0.2:9000"}, addr)
}

func TestAssignClient_ErrorsWithNoEngines(t *testing.T) {
	x := exchange.New("sekret", nil)
	_, err := x.AssignClient("us-east")
	assert.ErrorIs(t, err, exchange.ErrNoEngines)
}

func TestAuthenticate(t *testing.T) {
	x := exchange.New("sekret", nil)
	assert.True(t, x.Authenticate("alice", "sekret"))
	assert.False(t, x.Authenticate("alice", "wrong"))
}
