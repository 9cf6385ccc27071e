// Command server runs the mensageiro presence/chat server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mensageiro/mensageiro/pkg/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "~/.mensageiro/server.toml", "Path to config file")
	port := flag.Int("port", 0, "WebSocket port (overrides config)")
	metricsPort := flag.Int("metrics-port", -1, "Metrics port, 0 disables (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mensageiro-server %s\n", version)
		return
	}

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config := tomlConfig.ToServerConfig()

	if *port != 0 {
		config.Port = *port
	}
	if *metricsPort >= 0 {
		config.MetricsPort = *metricsPort
	}
	databasePath := tomlConfig.Server.DatabasePath
	if *dbPath != "" {
		databasePath = *dbPath
	}
	databasePath, err = server.ExpandPath(databasePath)
	if err != nil {
		log.Fatalf("Failed to resolve database path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(databasePath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	srv, err := server.NewServer(databasePath, config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if *debug {
		srv.EnableDebugLogging()
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("mensageiro-server %s listening on %s", version, srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	if err := srv.Stop(); err != nil {
		log.Printf("Shutdown finished with error: %v", err)
		os.Exit(1)
	}
}
