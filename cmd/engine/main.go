// Command engine runs one matching-engine node: a MatchEngine, its
// Synchronizer, and the transport.Server that exposes both over the wire,
// wired up with a signal-driven shutdown sequence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu-labs/meridian/internal/config"
	"github.com/saiputravu-labs/meridian/internal/engine"
	"github.com/saiputravu-labs/meridian/internal/gossip"
	"github.com/saiputravu-labs/meridian/internal/metrics"
	"github.com/saiputravu-labs/meridian/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:   "engine",
		Short: "Run a matching-engine node",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine node until terminated",
	}
	loadCfg := config.BindEngineFlags(runCmd.Flags())
	runCmd.Run = runEngine(loadCfg)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the engine node's build identity",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("meridian engine")
		},
	}

	root.AddCommand(runCmd, versionCmd)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("engine command failed")
	}
}

func runEngine(loadCfg func() config.EngineConfig) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg := loadCfg()
		if cfg.EngineID == "" || cfg.Address == "" {
			log.Fatal().Msg("--engine-id and --address are required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		m := metrics.New(cfg.EngineID)
		e := engine.New(cfg.Address, cfg.SharedSecret, nil, m)

		peers := make([]gossip.PeerStub, 0, len(cfg.Peers))
		for _, addr := range cfg.Peers {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			peers = append(peers, transport.NewPeerClient(addr))
		}
		sync := gossip.New(cfg.Address, e, peers, m)
		e.SetRouter(sync)

		server := transport.New(cfg.Address, transport.NewEngineHandler(e, sync))

		t, ctx := tomb.WithContext(ctx)
		t.Go(func() error { return sync.Run(t) })
		t.Go(func() error { return server.Run(t) })
		t.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			srv := &http.Server{Addr: metricsAddr(cfg.Address), Handler: mux}
			go func() {
				<-t.Dying()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})

		log.Info().Str("engine_id", cfg.EngineID).Str("address", cfg.Address).Msg("engine node running")
		<-ctx.Done()
		t.Kill(nil)
		if err := t.Wait(); err != nil {
			log.Error().Err(err).Msg("engine node exited with error")
		}
	}
}

// metricsAddr derives a /metrics port one above the node's RPC port, a
// simple fixed offset rather than a separately configured flag.
func metricsAddr(rpcAddr string) string {
	host, portStr, ok := strings.Cut(rpcAddr, ":")
	if !ok {
		return ":9100"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ":9100"
	}
	return host + ":" + strconv.Itoa(port+1)
}
