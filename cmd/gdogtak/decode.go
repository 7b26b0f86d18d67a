package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mighkel/GdogTAK/internal/alpha"
	"github.com/mighkel/GdogTAK/internal/cot"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [hex-packet ...]",
	Short: "Decode captured notification packets offline",
	Long: `Decode hex-encoded notification packets captured from a handheld,
for example out of a btsnoop log.

Each argument (or stdin line, when no arguments are given) is one packet
as a hex string; whitespace and colons are ignored. Packets carrying a
position are printed with the decoded coordinates and, with --cot, the
CoT event they would produce.`,
	RunE: runDecode,
}

var decodeCoT bool

func init() {
	decodeCmd.Flags().BoolVar(&decodeCoT, "cot", false, "Also print the CoT event for position packets")
}

func runDecode(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	packets := args
	if len(packets) == 0 {
		read, err := readHexLines(os.Stdin)
		if err != nil {
			return err
		}
		packets = read
	}

	encoder := cot.NewEncoder("", "DECODE", "Cyan", "Team Member")
	now := time.Now()

	for i, p := range packets {
		raw, err := parseHexPacket(p)
		if err != nil {
			return fmt.Errorf("packet %d: %w", i+1, err)
		}
		if err := decodeOne(cmd.OutOrStdout(), raw, encoder, now); err != nil {
			return fmt.Errorf("packet %d: %w", i+1, err)
		}
	}
	return nil
}

func decodeOne(out io.Writer, raw []byte, encoder *cot.Encoder, now time.Time) error {
	if alpha.IsRegistryPacket(raw) {
		reg := alpha.NewRegistry(nil)
		n := reg.Ingest(raw)
		fmt.Fprintf(out, "registry broadcast: %d collar record(s)\n", n)
		for _, e := range reg.Entries() {
			fmt.Fprintf(out, "  collar %s\n", hex.EncodeToString(e.ID[:]))
		}
		return nil
	}

	pos, ok := alpha.DecodePosition(raw, now)
	if !ok {
		src := alpha.ClassifyDeviceMarker(alpha.StripFragmentHeader(raw))
		fmt.Fprintf(out, "no position (%d bytes, source %s)\n", len(raw), src)
		return nil
	}

	fmt.Fprintf(out, "%s position: %.6f, %.6f\n", pos.Source, pos.LatDeg, pos.LonDeg)
	if decodeCoT {
		event, err := encoder.Encode(pos, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", event)
	}
	return nil
}

func parseHexPacket(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', ':':
			return -1
		}
		return r
	}, s)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty packet")
	}
	return raw, nil
}

func readHexLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}
