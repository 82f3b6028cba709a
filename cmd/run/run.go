package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mmx233/SMQ/config"
	"github.com/Mmx233/SMQ/protocol"
	"github.com/Mmx233/SMQ/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	sendTo     []uint
	interval   time.Duration
	text       string
	fromStdin  bool

	Cmd = &cobra.Command{
		Use:   "run",
		Short: "Run a transport node",
		Args:  cobra.NoArgs,
		RunE:  runNode,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.Flags().UintSliceVar(&sendTo, "send-to", nil, "peer addresses to send demo messages to")
	Cmd.Flags().DurationVar(&interval, "interval", time.Second, "send a demo message this often, 0 disables the ticker")
	Cmd.Flags().StringVar(&text, "text", "ping", "text of ticker messages")
	Cmd.Flags().BoolVar(&fromStdin, "stdin", false, "also send every line read from stdin")
}

func runNode(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "run-cmd").Logger()

	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadNodeConfig(configFile)
	if err != nil {
		return err
	}

	targets, err := parseTargets(sendTo, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	n, err := newNode(cfg, reg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.transport.Run(gctx)
	})
	if _, err := n.start(); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	if cfg.MetricsListen != "" {
		ln, err := net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("listen metrics %s: %w", cfg.MetricsListen, err)
		}
		g.Go(func() error {
			return serveMetrics(gctx, ln, reg)
		})
	}

	if len(targets) > 0 {
		var lines <-chan string
		if fromStdin {
			lines = readLines(os.Stdin)
		}
		g.Go(func() error {
			return n.sendLoop(gctx, targets, interval, text, lines)
		})
	}

	logger.Info().
		Str("name", cfg.Name).
		Uint16("address", cfg.Address).
		Msg("node running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("node error")
		return err
	}

	logger.Info().Msg("node stopped")
	return nil
}

func parseTargets(raw []uint, cfg *config.Node) ([]protocol.Address, error) {
	targets := make([]protocol.Address, 0, len(raw))
	for _, v := range raw {
		if v >= uint(cfg.MaxPeers) {
			return nil, fmt.Errorf("--send-to %d must be below max_peers %d", v, cfg.MaxPeers)
		}
		if v == uint(cfg.Address) {
			return nil, fmt.Errorf("--send-to %d is this node", v)
		}
		targets = append(targets, protocol.Address(v))
	}
	return targets, nil
}

// readLines feeds stdin lines to the sender. The reader goroutine ends with
// the input stream.
func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
