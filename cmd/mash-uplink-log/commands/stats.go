package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mash-protocol/mash-uplink/pkg/link"
	"github.com/mash-protocol/mash-uplink/pkg/log"
	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByLayer    map[log.Layer]int
	EventsByCategory map[log.Category]int
	Attempts         map[string]*AttemptStats
	Associations     int
	LinkLosses       int
	StackReady       int
	Errors           int
	FatalErrors      int
	BytesIn          int
	BytesOut         int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// AttemptStats holds statistics for a single connection attempt.
type AttemptStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	RemoteAddr  string
	FinalState  string
	Established bool
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(reader *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:    make(map[log.Layer]int),
		EventsByCategory: make(map[log.Category]int),
		Attempts:         make(map[string]*AttemptStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if sc := event.StateChange; sc != nil {
			switch {
			case sc.Entity == log.StateEntityLink && sc.NewState == link.StateConnected.String():
				stats.Associations++
			case sc.Entity == log.StateEntityLink && sc.NewState == link.StateDisconnected.String() &&
				sc.OldState == link.StateConnected.String():
				stats.LinkLosses++
			case sc.Entity == log.StateEntityStack:
				stats.StackReady++
			}
		}

		if event.Error != nil {
			stats.Errors++
			if event.Error.Fatal {
				stats.FatalErrors++
			}
		}

		if d := event.Data; d != nil {
			if d.Direction == log.DirectionIn {
				stats.BytesIn += d.Size
			} else {
				stats.BytesOut += d.Size
			}
		}

		if event.ConnectionID == "" {
			continue
		}
		a, ok := stats.Attempts[event.ConnectionID]
		if !ok {
			a = &AttemptStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Attempts[event.ConnectionID] = a
		}
		a.Events++
		if event.Timestamp.After(a.LastSeen) {
			a.LastSeen = event.Timestamp
		}
		if event.RemoteAddr != "" {
			a.RemoteAddr = event.RemoteAddr
		}
		if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityAttempt {
			// Every attempt ends in IDLE; the state before it is the outcome.
			if sc.NewState != session.StateIdle.String() {
				a.FinalState = sc.NewState
			}
			if sc.NewState == session.StateSessionEstablished.String() {
				a.Established = true
			}
		}
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Uplink Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for l := log.LayerLink; l <= log.LayerApplication; l++ {
		if count := stats.EventsByLayer[l]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", l.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryState, log.CategoryError, log.CategoryData} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Associations: %d (lost %d)\n", stats.Associations, stats.LinkLosses)
	fmt.Fprintf(w, "Stack Ready:  %d\n", stats.StackReady)
	if stats.BytesIn > 0 || stats.BytesOut > 0 {
		fmt.Fprintf(w, "Data:         %d bytes in, %d bytes out\n", stats.BytesIn, stats.BytesOut)
	}
	fmt.Fprintln(w)

	established := 0
	for _, a := range stats.Attempts {
		if a.Established {
			established++
		}
	}
	fmt.Fprintf(w, "Attempts: %d (%d established)\n", len(stats.Attempts), established)
	if len(stats.Attempts) > 0 {
		type attemptInfo struct {
			id    string
			stats *AttemptStats
		}
		attempts := make([]attemptInfo, 0, len(stats.Attempts))
		for id, a := range stats.Attempts {
			attempts = append(attempts, attemptInfo{id, a})
		}
		sort.Slice(attempts, func(i, j int) bool {
			return attempts[i].stats.FirstSeen.Before(attempts[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, a := range attempts {
			duration := a.stats.LastSeen.Sub(a.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s, %d events, duration %s\n",
				shortenConnID(a.id), a.stats.FinalState, a.stats.Events, duration)
			if a.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "             Remote: %s\n", a.stats.RemoteAddr)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d", stats.Errors)
		if stats.FatalErrors > 0 {
			fmt.Fprintf(w, " (%d fatal)", stats.FatalErrors)
		}
		fmt.Fprintln(w)
	}
}
