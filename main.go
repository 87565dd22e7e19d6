// ABOUTME: Entry point for the two-device simulator
// ABOUTME: Cobra commands for local runs, two-process serve/join, config and version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/hactar-dev/hactar-sim/internal/app"
	"github.com/hactar-dev/hactar-sim/internal/config"
	"github.com/hactar-dev/hactar-sim/internal/logging"
	"github.com/hactar-dev/hactar-sim/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func init() {
	// audio backends and the tick loop stay on the main thread
	runtime.LockOSThread()
}

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "hactar-sim",
	Short:         "Two-device audio and click simulator",
	Long:          `hactar-sim runs two simulated devices that exchange clicks and live microphone audio over a simulated network link.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run two devices in this process joined by an in-process relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.RunLocal(ctx)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one device and wait for a peer to join over the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join [address]",
	Short: "Run one device and join a serving peer (found over mDNS if no address is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			v.Set("net.peer", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Join(ctx)
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/hactar-sim/hactar-sim.yaml)")
	pf.String("backend", "", "audio backend: malgo, oto or null")
	pf.Int("latency-ms", 0, "silence played before the first received packet")
	pf.Int("frame-ms", 0, "audio packet duration in milliseconds")
	pf.Int("fps", 0, "world tick rate")
	pf.String("ui", "", "surface: tui or headless")
	pf.Duration("duration", 0, "stop after this long (0 runs until quit)")
	pf.Duration("click-interval", 0, "headless only: press each device in turn at this interval")
	pf.String("log-level", "", "debug, info, warn, error or none")
	pf.String("log-file", "", "log file path")

	bind("audio.backend", pf.Lookup("backend"))
	bind("audio.latency_ms", pf.Lookup("latency-ms"))
	bind("frame_ms", pf.Lookup("frame-ms"))
	bind("fps", pf.Lookup("fps"))
	bind("ui.mode", pf.Lookup("ui"))
	bind("ui.duration", pf.Lookup("duration"))
	bind("ui.click_interval", pf.Lookup("click-interval"))
	bind("log.level", pf.Lookup("log-level"))
	bind("log.file", pf.Lookup("log-file"))

	runCmd.Flags().StringSlice("devices", nil, "the two device names")
	bind("devices", runCmd.Flags().Lookup("devices"))

	serveCmd.Flags().String("name", "", "device name")
	serveCmd.Flags().String("listen", "", "listen address")
	serveCmd.Flags().Bool("mdns", true, "advertise over mDNS")
	bind("net.listen", serveCmd.Flags().Lookup("listen"))

	joinCmd.Flags().String("name", "", "device name")
	joinCmd.Flags().Bool("mdns", true, "browse over mDNS when no address is given")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// bind ties a flag to a config key. Unset flags leave the key alone.
func bind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// loadConfig loads the config and applies the per-command flags that
// cannot be bound directly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if f := cmd.Flags().Lookup("mdns"); f != nil && f.Changed {
		mdns, _ := cmd.Flags().GetBool("mdns")
		v.Set("net.mdns", mdns)
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("name"); f != nil && f.Changed {
		name, _ := cmd.Flags().GetString("name")
		cfg.Devices = []string{name}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withApp loads config and logging, then runs fn until it returns or a
// shutdown signal arrives
func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting", zap.String("version", version.String()), zap.String("command", cmd.Name()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, app.New(cfg, logger)); err != nil {
		logger.Error("stopped with error", zap.Error(err))
		return err
	}

	logger.Info("stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
