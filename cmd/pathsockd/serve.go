package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/irctrakz/pathsock/pkg/config"
	"github.com/irctrakz/pathsock/pkg/core"
	"github.com/irctrakz/pathsock/pkg/engine"
	"github.com/irctrakz/pathsock/pkg/logging"
	"github.com/irctrakz/pathsock/pkg/socket"
)

func newServeCmd() *cobra.Command {
	var healthAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and an echo responder over the socket core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Peers) == 0 {
				return fmt.Errorf("serve requires at least one configured peer")
			}
			return runServe(cfg, healthAddr)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8080", "health endpoint listen address")
	return cmd
}

func runServe(cfg *config.Config, healthAddr string) error {
	eng := engine.NewUDPEngine(cfg.Engine)
	for _, p := range cfg.Peers {
		eng.SetPathHint(p.Address(), p.Metadata())
	}
	if err := eng.Start(); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	defer eng.Stop()

	tbl := socket.NewTable(eng, socket.Options{
		SendTimeout:  cfg.SendTimeout(),
		PollInterval: cfg.PollInterval(),
	})

	handle, err := tbl.Create(core.Datagram, cfg.PeerAddresses(), cfg.Socket.SourcePort, 0)
	if err != nil {
		return fmt.Errorf("create socket: %w", err)
	}
	defer tbl.Close(handle)

	logging.Infof("serving echo responder on handle=%d over %d peer paths", handle, len(cfg.Peers))

	// Echo loop: every datagram goes back out through the socket core, so
	// path selection and statistics run on the live traffic.
	go func() {
		for {
			data, from, err := tbl.Receive(handle, 65535)
			if err != nil {
				if errors.Is(err, socket.ErrClosed) {
					return
				}
				logging.Warnf("receive: %v", err)
				continue
			}
			logging.Debugf("echo: %d bytes from %s", len(data), from)
			if _, err := tbl.Send(handle, data); err != nil {
				logging.Warnf("echo send: %v", err)
			}
		}
	}()

	// Optional periodic stats report, enabled by METRICS_INTERVAL.
	if os.Getenv("METRICS_INTERVAL") != "" {
		go runMetricsReporter(tbl, eng, handle)
	}

	// Health check endpoint
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		if err := http.ListenAndServe(healthAddr, mux); err != nil {
			logging.Warnf("health endpoint: %v", err)
		}
	}()

	// Wait for termination
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logging.Infof("shutting down")
	return nil
}
