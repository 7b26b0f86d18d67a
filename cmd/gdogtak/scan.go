package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mighkel/GdogTAK/internal/device/goble"
	"github.com/mighkel/GdogTAK/internal/scan"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Use this to find the name or address of an Alpha handheld before running
the bridge. Handhelds typically advertise as "Alpha 200i", "Alpha 300i"
or similar.`,
	RunE: runScanCmd,
}

var (
	scanDuration time.Duration
	scanFilter   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFilter, "filter", "f", "", "Only show devices whose name contains this substring")
	scanCmd.Flags().Bool("verbose", false, "Verbose output")
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose", logrus.PanicLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	fmt.Printf("Scanning for %s...\n", scanDuration)

	s := scan.NewScanner(logger)
	devices, err := s.Scan(ctx, goble.NewTransport(logger), scanDuration)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanFilter != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Name), strings.ToLower(scanFilter)) {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	return displayDevices(os.Stdout, devices)
}

func displayDevices(out io.Writer, devices []scan.DeviceInfo) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%t\n", name, d.Address, d.RSSI, d.Connectable)
	}
	return w.Flush()
}
