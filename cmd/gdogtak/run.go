package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mighkel/GdogTAK/internal/alpha"
	"github.com/mighkel/GdogTAK/internal/cot"
	"github.com/mighkel/GdogTAK/internal/device/goble"
	"github.com/mighkel/GdogTAK/internal/tracker"
	"github.com/mighkel/GdogTAK/internal/udp"
	"github.com/mighkel/GdogTAK/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a handheld and relay positions to TAK",
	Long: `Connect to a Garmin Alpha handheld over BLE and relay decoded
collar and handheld positions to a TAK multicast group as Cursor-on-Target
events.

The session is maintained indefinitely: a lost link is re-scanned and
re-established automatically. Press Ctrl+C to stop.`,
	RunE: runRun,
}

var (
	runDeviceName string
	runAddress    string
	runDest       string
	runCallsign   string
	runQuiet      bool
)

func init() {
	runCmd.Flags().StringVarP(&runDeviceName, "name", "n", "", "Device name substring to connect to (overrides config)")
	runCmd.Flags().StringVarP(&runAddress, "address", "a", "", "Device address to connect to directly (overrides config)")
	runCmd.Flags().StringVar(&runDest, "dest", "", "CoT destination host:port (overrides config)")
	runCmd.Flags().StringVar(&runCallsign, "callsign", "", "Callsign for outgoing CoT events (overrides config)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress per-position console output")
	runCmd.Flags().Bool("verbose", false, "Verbose output")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	applyRunOverrides(cfg)

	logger, err := configureLogger(cmd, "verbose", logrus.WarnLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	sender, err := udp.NewSender(cfg.Output.Dest)
	if err != nil {
		return fmt.Errorf("failed to open CoT output: %w", err)
	}
	defer sender.Close()

	encoder := cot.NewEncoder(cfg.Unit.UID, cfg.Unit.Callsign, cfg.Unit.Team, cfg.Unit.Role)
	if cfg.Output.Stale > 0 {
		encoder.Stale = cfg.Output.Stale
	}

	store := tracker.NewStore()
	transport := goble.NewTransport(logger)

	engine := alpha.NewEngine(alpha.Config{
		DeviceName:       cfg.Device.Name,
		DeviceAddress:    cfg.Device.Address,
		RequestMTU:       cfg.Link.MTU,
		SettleDelay:      cfg.Link.SettleDelay,
		StepDelay:        cfg.Link.StepDelay,
		ReconnectBackoff: cfg.Link.ReconnectBackoff,
		TickInterval:     cfg.Link.TickInterval,
	}, transport, logger)

	engine.OnStateChange(func(state alpha.LinkState, status string) {
		store.SetLinkState(state, status)
		if !runQuiet {
			printState(state, status)
		}
	})

	engine.OnPosition(func(p alpha.Position) {
		store.Record(p)
		event, err := encoder.Encode(p, time.Now())
		if err != nil {
			logger.WithError(err).Warn("failed to encode CoT event")
			return
		}
		if err := sender.Send(event); err != nil {
			logger.WithError(err).Warn("failed to send CoT event")
			return
		}
		if !runQuiet {
			printPosition(p)
		}
	})

	fmt.Printf("Relaying to %s as %s. Press Ctrl+C to stop.\n", sender.Dest(), cfg.Unit.Callsign)
	engine.Start()
	defer engine.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	<-sigCh

	fmt.Println("\nCtrl+C pressed, shutting down...")
	printSummary(store.Snapshot())
	return nil
}

func applyRunOverrides(cfg *config.Config) {
	if runDeviceName != "" {
		cfg.Device.Name = runDeviceName
	}
	if runAddress != "" {
		cfg.Device.Address = runAddress
	}
	if runDest != "" {
		cfg.Output.Dest = runDest
	}
	if runCallsign != "" {
		cfg.Unit.Callsign = runCallsign
	}
}

func printState(state alpha.LinkState, status string) {
	c := color.New(color.FgYellow)
	switch state {
	case alpha.StateStreaming:
		c = color.New(color.FgGreen)
	case alpha.StateError:
		c = color.New(color.FgRed)
	}
	fmt.Printf("[%s] %s\n", c.Sprint(state), status)
}

func printPosition(p alpha.Position) {
	fmt.Printf("  %-8s %11.6f, %11.6f\n", p.Source, p.LatDeg, p.LonDeg)
}

func printSummary(snap tracker.Snapshot) {
	fmt.Printf("Relayed %d collar fix(es), %d unit(s) seen.\n",
		snap.CollarCount, len(snap.Entities))
	if snap.HasFix {
		fmt.Printf("Last fix: %.6f, %.6f\n", snap.LastLatDeg, snap.LastLonDeg)
	}
}
