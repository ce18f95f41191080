package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// runNode starts the long-running services and blocks until interrupted.
func runNode() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	modulus, err := config.ModulusInt()
	if err != nil {
		return err
	}
	keys, err := LoadKeyPair(keyPath())
	if err != nil {
		return fmt.Errorf("no identity key, run `pol keygen` first: %w", err)
	}

	if err := os.MkdirAll(config.DataDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := OpenRecordStore(config.DataDirectory)
	if err != nil {
		return err
	}
	defer store.Close()

	serviceConfig := DefaultServiceConfig()
	serviceConfig.Modulus = modulus
	serviceConfig.UpperBound = config.UpperBound
	serviceConfig.ListenOn = config.ListenOn

	service := NewPoLService(serviceConfig, keys, store)
	if err := service.Start(); err != nil {
		return err
	}

	var httpServer *http.Server
	if config.EnableHTTP {
		httpServer = newHTTPServer(service, config.HTTPPort)
		go func() {
			log.Printf("HTTP API listening on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server stopped: %v", err)
			}
		}()
	}

	if config.EnableGRPC {
		grpcServer, _ := newGRPCServer(service)
		go func() {
			log.Printf("gRPC server listening on :%d", config.GRPCPort)
			if err := serveGRPC(grpcServer, config.GRPCPort); err != nil {
				log.Printf("gRPC server stopped: %v", err)
			}
		}()
		defer grpcServer.GracefulStop()
	}

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received %v, shutting down", sig)

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}

	return service.Stop()
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the proof-of-latency node",
	Long: `Runs the long-lived proof-of-latency node: a verifier listener for
inbound peers, a worker pool for outbound measurements, the persistent
record store and the HTTP/gRPC APIs.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNode(); err != nil {
			fmt.Printf("Error running node: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
}
