// ABOUTME: Entry point for vision-gateway, the realtime session gateway of the Vision Platform
// ABOUTME: Dispatches CLI subcommands: serve, init, token, user, health, sessions, usage

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/vision-gateway/internal/config"
	"github.com/2389/vision-gateway/internal/gateway"
	"github.com/2389/vision-gateway/internal/logging"
)

// Version is set at build time.
var version = "dev"

const banner = `
       _     _                                  _
__   _(_)___(_) ___  _ __         __ _  __ _| |_ _____      ____ _ _   _
\ \ / / / __| |/ _ \| '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \ V /| \__ \ | (_) | | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \_/ |_|___/_|\___/|_| |_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                 |___/                             |___/
`

const usage = `Usage: vision-gateway <command> [flags]

Commands:
  serve                         Start the gateway server
  init                          Create a new config file interactively
  token --user ID [--ttl 24h]   Mint a handshake token for a user
  user add|enable|disable|list  Manage the identity directory
  health                        Check gateway health
  sessions [--token T]          List live sessions (admin token)
  usage [--user ID] [--since D] Show feature usage statistics
`

// getConfigPath returns the path to the gateway config file.
// Priority: VISION_CONFIG env var > XDG_CONFIG_HOME/vision/gateway.yaml > ~/.config/vision/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("VISION_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "vision", "gateway.yaml")
}

// getDataPath returns the path to the vision data directory.
// Priority: XDG_DATA_HOME/vision > ~/.local/share/vision
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "vision")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(args)
	case "token":
		err = runToken(ctx, args)
	case "user":
		err = runUser(ctx, args)
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx, args)
	case "usage":
		err = runUsage(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:       %s\n", cfg.Server.GRPCAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Directory:  %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Processing: %s", cfg.Processing.Backend)
	if cfg.Processing.CacheEnabled {
		gray.Print(" (cached)")
	}
	fmt.Println()

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting vision-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"processing", cfg.Processing.Backend,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}
