// Command wfsbridge runs the OSC coordination core headless: it loads
// the yaml configuration, starts the receivers and the heartbeat, and
// keeps applying configuration changes until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbeswick/wfsbridge/bridge"
	"github.com/tbeswick/wfsbridge/config"
)

var (
	configPath string
	logLevel   string
	channels   int32
)

var rootCmd = &cobra.Command{
	Use:   "wfsbridge",
	Short: "OSC network coordination for the spatial audio controller",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "bridge.yaml", "configuration file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "logrus level")
	serveCmd.Flags().Int32Var(&channels, "channels", 64, "input channel count")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	f, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := bridge.NewMemoryStore(channels)
	m := bridge.NewManager(store, bridge.Callbacks{
		OnStatusChanged: func(target int, status bridge.ConnectionStatus) {
			log.Infof("target %d status: %s", target, status)
		},
		OnRemoteReady: func(target int) {
			log.Infof("remote %d ready", target)
		},
		OnRemoteDisconnected: func(target int) {
			log.Warnf("remote %d disconnected", target)
		},
	})
	m.Apply(f)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error { return config.Watch(gctx, configPath, m.Apply) })
	g.Go(func() error {
		<-gctx.Done()
		s := m.Stats()
		log.Infof("shutting down: sent=%d received=%d coalesced=%d parseErrors=%d",
			s.MessagesSent, s.MessagesReceived, s.Coalesced, s.ParseErrors)
		return gctx.Err()
	})
	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
