// Package config provides the cobra/viper-driven bootstrap flags for the
// node daemons. cmd/engine and cmd/exchange have a real subcommand surface
// (run, version), so cobra/viper carry the flag and environment binding
// rather than the stdlib flag package.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EngineConfig is one matching-engine node's bootstrap configuration.
type EngineConfig struct {
	EngineID     string
	Address      string
	ExchangeAddr string
	SharedSecret string
	Peers        []string
}

// BindEngineFlags registers the engine node's flags on flags and returns a
// loader that reads them back (plus MERIDIAN_-prefixed environment
// overrides) once cobra has parsed argv.
func BindEngineFlags(flags *pflag.FlagSet) func() EngineConfig {
	flags.String("engine-id", "", "unique id for this engine node")
	flags.String("address", "0.0.0.0:9001", "address this engine listens on for client and peer RPCs")
	flags.String("exchange-addr", "0.0.0.0:9000", "address of the exchange/bootstrap node")
	flags.String("shared-secret", "", "shared secret clients authenticate with")
	flags.StringSlice("peers", nil, "comma-separated addresses of peer engine nodes")

	v := viper.New()
	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return func() EngineConfig {
		return EngineConfig{
			EngineID:     v.GetString("engine-id"),
			Address:      v.GetString("address"),
			ExchangeAddr: v.GetString("exchange-addr"),
			SharedSecret: v.GetString("shared-secret"),
			Peers:        v.GetStringSlice("peers"),
		}
	}
}

// ExchangeConfig is the bootstrap/exchange node's configuration.
type ExchangeConfig struct {
	Address      string
	SharedSecret string
	Engines      []string // id=address pairs
}

// BindExchangeFlags mirrors BindEngineFlags for the exchange node.
func BindExchangeFlags(flags *pflag.FlagSet) func() ExchangeConfig {
	flags.String("address", "0.0.0.0:9000", "address this exchange node listens on")
	flags.String("shared-secret", "", "shared secret clients authenticate with")
	flags.StringSlice("engines", nil, "comma-separated id=address pairs of engine nodes")

	v := viper.New()
	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return func() ExchangeConfig {
		return ExchangeConfig{
			Address:      v.GetString("address"),
			SharedSecret: v.GetString("shared-secret"),
			Engines:      v.GetStringSlice("engines"),
		}
	}
}
