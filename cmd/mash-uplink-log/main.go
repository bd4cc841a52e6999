// Command mash-uplink-log is a tool for viewing and analyzing uplink protocol
// log files.
//
// Log files are created by running mash-uplink with the -protocol-log flag.
//
// Usage:
//
//	mash-uplink-log <command> [flags] <file.ulog>
//
// Commands:
//
//	view     View log file in human-readable format
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	mash-uplink-log view uplink.ulog
//
//	# View only session-layer events
//	mash-uplink-log view -layer session uplink.ulog
//
//	# View one attempt's errors
//	mash-uplink-log view -conn-id 4b0c2f9e-... -category error uplink.ulog
//
//	# Show statistics
//	mash-uplink-log stats uplink.ulog
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mash-protocol/mash-uplink/cmd/mash-uplink-log/commands"
	"github.com/mash-protocol/mash-uplink/pkg/log"
)

const usage = `mash-uplink-log - Uplink Protocol Log Analyzer

Usage:
  mash-uplink-log <command> [flags] <file.ulog>

Commands:
  view     View log file in human-readable format
  stats    Show statistics about the log file

Use "mash-uplink-log <command> -help" for more information about a command.
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

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `mash-uplink-log view - View log file in human-readable format

Usage:
  mash-uplink-log view [flags] <file.ulog>

Flags:
`)
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (link, stack, transport, session, application)")
	category := fs.String("category", "", "Filter by category (state, error, data)")
	connID := fs.String("conn-id", "", "Filter by connection attempt ID")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)

	filter := log.Filter{ConnectionID: *connID}

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fatal(err)
		}
		filter.Layer = &l
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fatal(err)
		}
		filter.Category = &c
	}

	if *timeStart != "" {
		ts, err := time.Parse(time.RFC3339, *timeStart)
		if err != nil {
			fatal(fmt.Errorf("invalid -time-start: %w", err))
		}
		filter.TimeStart = &ts
	}

	if *timeEnd != "" {
		te, err := time.Parse(time.RFC3339, *timeEnd)
		if err != nil {
			fatal(fmt.Errorf("invalid -time-end: %w", err))
		}
		filter.TimeEnd = &te
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `mash-uplink-log stats - Show statistics about the log file

Usage:
  mash-uplink-log stats <file.ulog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunStats(fs.Arg(0), os.Stdout); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
