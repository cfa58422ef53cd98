package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aircatch/host/internal/config"
	"github.com/aircatch/host/internal/engine"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/session"
	"github.com/aircatch/host/internal/transport/relay"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "aircatch-host",
	Short: "AirCatch host",
	Long:  "AirCatch host - screen and audio streaming server paired by PIN over local, close-range, or relay transport",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the host and begin listening for a pairing handshake",
	Run: func(cmd *cobra.Command, args []string) {
		runHost()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AirCatch Host v%s\n", version)
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage the pairing PIN of a running host",
}

var pinRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Signal a running host to rotate its pairing PIN",
	Run: func(cmd *cobra.Command, args []string) {
		rotatePIN()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/aircatch/aircatch-host.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	pinCmd.AddCommand(pinRotateCmd)
	rootCmd.AddCommand(pinCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// statusLogger surfaces session lifecycle events to the structured logger;
// a real UI would implement session.StatusObserver itself instead.
type statusLogger struct{}

func (statusLogger) OnStateChange(s session.State) {
	log.Info("session state changed", "state", s.String())
}

func (statusLogger) OnError(reason string) {
	log.Warn("session error", "reason", reason)
}

func runHost() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	log = logging.L("main")

	log.Info("starting aircatch-host", "version", version, "hostName", cfg.HostName)

	eng := engine.New(cfg, engine.Adapters{
		STUNClient: relay.NewSTUNClient(),
		// Encoder, Injector, Display, Advertiser, and CloseRange are left
		// nil: this module only defines their contracts (spec §1, §6). A
		// real deployment supplies OS-specific implementations here.
	})
	eng.Session.SetStatusObserver(statusLogger{})

	pin, err := eng.Start()
	if err != nil {
		log.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	fmt.Printf("AirCatch host listening. PIN: %s\n", pin)

	if err := writePIDFile(cfg.PIDFile); err != nil {
		log.Warn("failed to write pid file, 'pin rotate' will not find this process", "error", err, "pidFile", cfg.PIDFile)
	} else {
		defer os.Remove(cfg.PIDFile)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			log.Info("received SIGHUP, rotating pin")
			newPIN, err := eng.Session.RotatePIN()
			if err != nil {
				log.Error("pin rotation failed", "error", err)
				continue
			}
			fmt.Printf("PIN rotated: %s\n", newPIN)
			continue
		}
		log.Info("received signal, shutting down", "signal", sig.String())
		break
	}

	eng.Stop()
	log.Info("aircatch-host stopped")
}

// writePIDFile records this process's pid so a separate `pin rotate`
// invocation can find and signal it.
func writePIDFile(path string) error {
	if path == "" {
		return fmt.Errorf("pid file path is empty")
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// rotatePIN signals the running host (found via its pid file) to rotate its
// pairing PIN in place; the host itself performs the rotation and prints the
// new PIN to its own log/stdout (spec §4.9 "Session re-registration").
func rotatePIN() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	raw, err := os.ReadFile(cfg.PIDFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no running host found at pid file %s: %v\n", cfg.PIDFile, err)
		os.Exit(1)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pid file %s: %v\n", cfg.PIDFile, err)
		os.Exit(1)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host process %d not found: %v\n", pid, err)
		os.Exit(1)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		fmt.Fprintf(os.Stderr, "failed to signal host process %d: %v\n", pid, err)
		os.Exit(1)
	}

	fmt.Printf("sent pin rotation signal to host process %d\n", pid)
}
