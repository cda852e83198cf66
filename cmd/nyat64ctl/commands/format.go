package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// mappingView mirrors the daemon's debugsrv mapping JSON representation.
type mappingView struct {
	IPv4Local   string `json:"ipv4_local"`
	IPv4Remote  string `json:"ipv4_remote"`
	IPv6Local   string `json:"ipv6_local"`
	IPv6Remote  string `json:"ipv6_remote"`
	IPv4Gateway string `json:"ipv4_gateway,omitempty"`
}

// arpEntryView mirrors the daemon's debugsrv ARP entry JSON representation.
type arpEntryView struct {
	Addr          string `json:"addr"`
	MAC           string `json:"mac"`
	RemainSeconds int    `json:"remain_seconds"`
}

// formatMappings renders the mapping table dump in the requested format.
func formatMappings(views []mappingView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(views)
	case formatTable:
		return formatMappingsTable(views), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatARPEntries renders the ARP cache dump in the requested format.
func formatARPEntries(views []arpEntryView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(views)
	case formatTable:
		return formatARPTable(views), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatMappingsTable(views []mappingView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IPV4-LOCAL\tIPV4-REMOTE\tIPV6-LOCAL\tIPV6-REMOTE\tGATEWAY")

	for _, v := range views {
		gw := v.IPv4Gateway
		if gw == "" {
			gw = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.IPv4Local, v.IPv4Remote, v.IPv6Local, v.IPv6Remote, gw)
	}

	_ = w.Flush()

	return buf.String()
}

func formatARPTable(views []arpEntryView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tMAC\tTTL-REMAINING")

	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%ds\n", v.Addr, v.MAC, v.RemainSeconds)
	}

	_ = w.Flush()

	return buf.String()
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
