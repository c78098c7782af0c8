// Command sapi-log is a tool for viewing and analyzing SAPI protocol captures.
//
// Captures are written by sapi-device when log.protocol_file is set in its
// configuration or -protocol-log is given.
//
// Usage:
//
//	sapi-log <command> [flags] <capture.slog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSON lines or CSV
//	filter   Filter capture and write matching events to a new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View all events
//	sapi-log view device.slog
//
//	# View serial link traffic only
//	sapi-log view -transport serial device.slog
//
//	# Export to CSV
//	sapi-log export -format csv -o events.csv device.slog
//
//	# Keep only events about the temp sensor
//	sapi-log filter -sensor temp -o temp.slog device.slog
//
//	# Show statistics
//	sapi-log stats device.slog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sapi-coap/sapi-go/cmd/sapi-log/commands"
)

const usage = `sapi-log - SAPI Protocol Capture Analyzer

Usage:
  sapi-log <command> [flags] <capture.slog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSON lines or CSV
  filter   Filter capture and write matching events to a new file
  stats    Show statistics about the capture

Use "sapi-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	var o commands.FilterOptions
	fs.StringVar(&o.LinkID, "link-id", "", "Filter by link ID")
	fs.StringVar(&o.DeviceType, "sensor", "", "Filter by sensor device type")
	fs.StringVar(&o.Remote, "remote", "", "Filter by peer address")
	fs.StringVar(&o.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&o.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&o.Layer, "layer", "", "Filter by layer (link, coap, service)")
	fs.StringVar(&o.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&o.Category, "category", "", "Filter by category (message, observe, state, error)")
	fs.StringVar(&o.Transport, "transport", "", "Filter by transport (udp, serial)")
	return &o
}

func newFlagSet(name, synopsis, usageLine string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "sapi-log %s - %s\n\nUsage:\n  %s\n\nFlags:\n", name, synopsis, usageLine)
		fs.PrintDefaults()
	}
	return fs
}

// pathArg parses args and returns the capture path, exiting on error.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture in human-readable format", "sapi-log view [flags] <capture.slog>")
	opts := filterFlags(fs)
	path := pathArg(fs, args)

	filter, err := opts.BuildFilter()
	if err != nil {
		fatal(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture to JSON lines or CSV", "sapi-log export [flags] <capture.slog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := pathArg(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fatal(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture and write matching events to a new file", "sapi-log filter [flags] <capture.slog>")
	output := fs.String("o", "", "Output file (required)")
	opts := filterFlags(fs)
	path := pathArg(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := opts.BuildFilter()
	if err != nil {
		fatal(err)
	}
	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture", "sapi-log stats <capture.slog>")
	path := pathArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fatal(err)
	}
}
