// Package main provides the Pangolin client entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fosrl/pangolin-client/internal/api"
	"github.com/fosrl/pangolin-client/internal/config"
	"github.com/fosrl/pangolin-client/internal/diag"
	"github.com/fosrl/pangolin-client/internal/logging"
	"github.com/fosrl/pangolin-client/internal/manager"
	"github.com/fosrl/pangolin-client/internal/metrics"
	"github.com/fosrl/pangolin-client/internal/power"
	"github.com/fosrl/pangolin-client/internal/status"
	"github.com/fosrl/pangolin-client/internal/tunnel"
	"github.com/fosrl/pangolin-client/internal/version"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "pangolin-client",
		Short: "Pangolin VPN client",
		Long:  `Pangolin client manages a WireGuard-style tunnel through the pangolin-go backend.`,
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "pangolin.yaml", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Full())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultClientConfig()
			if err := config.LoadAndValidate(configFile, &cfg); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	})

	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDisconnectCommand())
	rootCmd.AddCommand(newSwitchOrgCommand())
	rootCmd.AddCommand(newDiagCommand())
}

func loadConfig() (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if err := config.LoadAndValidate(configFile, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tunnel status from the control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := status.NewClient(cfg.Socket.Path, 2*time.Second, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			st, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			snap := status.Snapshot{Available: true, Status: st, UpdatedAt: time.Now()}
			fmt.Print(snap.FormattedText())
			return nil
		},
	}
}

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Ask the running backend to terminate its session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := status.NewClient(cfg.Socket.Path, 2*time.Second, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := client.Exit(ctx); err != nil {
				return fmt.Errorf("disconnect: %w", err)
			}
			fmt.Println("Disconnect requested")
			return nil
		},
	}
}

func newSwitchOrgCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-org <org-id>",
		Short: "Re-register the running session under another organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := status.NewClient(cfg.Socket.Path, 2*time.Second, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := client.SwitchOrg(ctx, args[0]); err != nil {
				return fmt.Errorf("switch org: %w", err)
			}
			fmt.Printf("Switch to organization %s requested\n", args[0])
			return nil
		},
	}
}

func newDiagCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "diag <name>",
		Short: "Resolve a name against a tunnel DNS server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				server = cfg.Tunnel.DNS
			}
			if server == "" {
				return fmt.Errorf("no DNS server configured, use --server")
			}

			probe := diag.NewDNSProbe(5*time.Second, nil)
			result, err := probe.Lookup(cmd.Context(), server, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s via %s: %s (%.1fms)\n", result.Name, result.Server,
				result.Rcode, float64(result.RTT.Microseconds())/1000)
			for _, addr := range result.Addresses {
				fmt.Printf("  %s\n", addr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "DNS server to query (host or host:port)")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logging.Close()
	log := logging.Default()

	backend, err := tunnel.RegisteredBackend()
	if err != nil {
		return fmt.Errorf("native backend: %w", err)
	}

	m := metrics.New()
	service := tunnel.NewOSService("", log)
	controller := tunnel.NewController(backend, service, tunnel.PollerConfig{
		Interval: cfg.Polling.SettingsInterval.Duration(),
	}, m, log)

	statusClient := status.NewClient(cfg.Socket.Path, 2*time.Second, log)
	powerSource := power.NewChannelSource()
	powerMon := power.NewMonitor(powerSource, backend, m, log)

	creds := manager.CredentialFunc(func(ctx context.Context) (manager.Credentials, error) {
		return manager.Credentials{
			ID:        os.Getenv("PANGOLIN_ID"),
			Secret:    os.Getenv("PANGOLIN_SECRET"),
			UserToken: os.Getenv("PANGOLIN_USER_TOKEN"),
		}, nil
	})

	mgr := manager.New(cfg, creds, controller, statusClient, m, powerMon, log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var apiServer *http.Server
	if cfg.API.Enabled {
		apiServer = &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           api.New(mgr, m).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("local API listening", "addr", cfg.API.Listen)
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("local API server failed", "error", err)
			}
		}()
	}

	if err := mgr.Connect(ctx, manager.ConnectOptions{}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received signal", "signal", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if apiServer != nil {
		_ = apiServer.Shutdown(shutdownCtx)
	}
	return mgr.Disconnect(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
