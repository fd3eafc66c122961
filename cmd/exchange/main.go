// Command exchange runs the bootstrap/assigner node.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu-labs/meridian/internal/config"
	"github.com/saiputravu-labs/meridian/internal/exchange"
	"github.com/saiputravu-labs/meridian/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:   "exchange",
		Short: "Run the bootstrap/assigner node",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the exchange node until terminated",
	}
	loadCfg := config.BindExchangeFlags(runCmd.Flags())
	runCmd.Run = runExchange(loadCfg)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the exchange node's build identity",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("meridian exchange")
		},
	}

	root.AddCommand(runCmd, versionCmd)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("exchange command failed")
	}
}

func runExchange(loadCfg func() config.ExchangeConfig) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg := loadCfg()
		if cfg.Address == "" {
			log.Fatal().Msg("--address is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		engines := make([]exchange.EngineInfo, 0, len(cfg.Engines))
		for _, pair := range cfg.Engines {
			id, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				log.Warn().Str("entry", pair).Msg("skipping malformed --engines entry, expected id=address")
				continue
			}
			engines = append(engines, exchange.EngineInfo{ID: id, Address: addr})
		}

		x := exchange.New(cfg.SharedSecret, engines)
		server := transport.New(cfg.Address, transport.NewExchangeHandler(x))

		t, ctx := tomb.WithContext(ctx)
		t.Go(func() error { return server.Run(t) })

		log.Info().Str("address", cfg.Address).Int("engines", len(engines)).Msg("exchange node running")
		<-ctx.Done()
		t.Kill(nil)
		if err := t.Wait(); err != nil {
			log.Error().Err(err).Msg("exchange node exited with error")
		}
	}
}
