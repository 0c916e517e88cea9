package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/tcpchat/internal/server"
)

var (
	configFile     string
	port           string
	logEnabled     bool
	readBufferSize int
	serverName     string
	wsAddr         string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "tcpchat-server",
	Short: "Run the chat server",
	Long: `Runs the chat server on a TCP port and, when --ws-addr is set,
on a WebSocket endpoint as well.

Settings are read from the optional YAML file given with --config, then from
CHAT_* environment variables, then from the flags below.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML configuration file")
	flags.StringVar(&port, "port", ":8888", "TCP listen address")
	flags.BoolVar(&logEnabled, "log", true, "Enable logging")
	flags.IntVar(&readBufferSize, "read-buffer", 0, "Largest single payload read in bytes")
	flags.StringVar(&serverName, "name", server.DefaultServerName, "Name the server signs its messages with")
	flags.StringVar(&wsAddr, "ws-addr", "", "Listen address of the WebSocket transport (disabled when empty)")
	flags.BoolVar(&verbose, "verbose", false, "Log every frame")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewServer(cfg).ListenAndServe(ctx)
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	cfg := server.NewConfigFromEnv()
	if configFile != "" {
		loaded, err := server.LoadConfigFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("log") {
		cfg.Log = logEnabled
	}
	if flags.Changed("read-buffer") {
		cfg.ReadBufferSize = readBufferSize
	}
	if flags.Changed("name") {
		cfg.ServerName = serverName
	}
	if flags.Changed("ws-addr") {
		cfg.WebSocketAddr = wsAddr
	}
	return cfg, nil
}
