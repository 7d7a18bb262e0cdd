// Package report renders a finished scan for humans or machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/glockie029/portsweep/internal/portscan"
)

// Summary is everything the renderers need about one scan.
type Summary struct {
	ScanID  string
	Target  string // as typed by the user
	Address string // resolved address that was probed
	Config  portscan.ScanConfig
	Report  portscan.ScanReport
	Elapsed time.Duration
}

type jsonSummary struct {
	ScanID   string `json:"scan_id"`
	Target   string `json:"target"`
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Timeout  string `json:"timeout"`
	Elapsed  string `json:"elapsed"`
	Scanned  int    `json:"scanned"`
	Open     []int  `json:"open"`
}

// Text writes the open ports, one "Port N" line each, in ascending order.
func Text(w io.Writer, s Summary) error {
	open := s.Report.OpenPorts()

	header := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	if _, err := header.Fprintf(w, "Scanning %s (%s)\n\n", s.Address, s.Config.Protocol); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "Open ports:"); err != nil {
		return err
	}
	for _, p := range open {
		if _, err := green.Fprintf(w, "Port %d\n", p); err != nil {
			return err
		}
	}
	if len(open) == 0 {
		if _, err := fmt.Fprintln(w, "(none)"); err != nil {
			return err
		}
	}
	_, err := header.Fprintf(w, "\n[+]%d/%d open, done in %s\n", len(open), len(s.Report), s.Elapsed.Truncate(time.Millisecond))
	return err
}

// JSON writes a single indented document describing the scan.
func JSON(w io.Writer, s Summary) error {
	open := s.Report.OpenPorts()
	if open == nil {
		open = []int{}
	}
	doc := jsonSummary{
		ScanID:   s.ScanID,
		Target:   s.Target,
		Address:  s.Address,
		Protocol: s.Config.Protocol.String(),
		Start:    s.Config.PortStart,
		End:      s.Config.PortEnd - 1,
		Timeout:  s.Config.Timeout.String(),
		Elapsed:  s.Elapsed.Truncate(time.Millisecond).String(),
		Scanned:  len(s.Report),
		Open:     open,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
