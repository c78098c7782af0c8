package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sapi-coap/sapi-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByType    map[log.MessageType]int
	Links             map[string]*LinkStats
	Sensors           map[string]int
	Registrations     int
	Cancellations     int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// LinkStats holds statistics for a single link.
type LinkStats struct {
	Transport log.Transport
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Remotes   map[string]int
}

// CollectStats reads every event of r.
func CollectStats(r *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByType:    make(map[log.MessageType]int),
		Links:             make(map[string]*LinkStats),
		Sensors:           make(map[string]int),
	}

	for {
		event, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.LinkID != "" {
			link, ok := stats.Links[event.LinkID]
			if !ok {
				link = &LinkStats{
					Transport: event.Transport,
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
					Remotes:   make(map[string]int),
				}
				stats.Links[event.LinkID] = link
			}
			link.Events++
			if event.Timestamp.After(link.LastSeen) {
				link.LastSeen = event.Timestamp
			}
			if event.Remote != "" {
				link.Remotes[event.Remote]++
			}
		}

		if event.DeviceType != "" {
			stats.Sensors[event.DeviceType]++
		}
		if event.Message != nil {
			stats.MessagesByType[event.Message.Type]++
		}
		if event.Observe != nil {
			if event.Observe.Registered {
				stats.Registrations++
			} else {
				stats.Cancellations++
			}
		}
		if event.Error != nil {
			stats.Errors++
		}
	}
	return stats, nil
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := CollectStats(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== SAPI Protocol Log Statistics ===")
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
	for _, layer := range []log.Layer{log.LayerLink, log.LayerCoAP, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryObserve, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByType) > 0 {
		fmt.Fprintln(w, "Messages:")
		for _, mt := range []log.MessageType{log.MessageTypeRequest, log.MessageTypeResponse, log.MessageTypeNotification, log.MessageTypeReset} {
			if count := stats.MessagesByType[mt]; count > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", mt.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	if stats.Registrations > 0 || stats.Cancellations > 0 {
		fmt.Fprintf(w, "Observers: %d registered, %d cancelled\n", stats.Registrations, stats.Cancellations)
		fmt.Fprintln(w)
	}

	if len(stats.Sensors) > 0 {
		names := make([]string, 0, len(stats.Sensors))
		for name := range stats.Sensors {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w, "Sensors:")
		for _, name := range names {
			fmt.Fprintf(w, "  %-14s %d\n", name+":", stats.Sensors[name])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Links: %d\n", len(stats.Links))
	if len(stats.Links) > 0 {
		type linkInfo struct {
			id    string
			stats *LinkStats
		}
		links := make([]linkInfo, 0, len(stats.Links))
		for id, ls := range stats.Links {
			links = append(links, linkInfo{id, ls})
		}
		sort.Slice(links, func(i, j int) bool {
			return links[i].stats.FirstSeen.Before(links[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, l := range links {
			duration := l.stats.LastSeen.Sub(l.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s %d events, duration %s, %d peers\n",
				shortenLinkID(l.id), l.stats.Transport.String(), l.stats.Events, duration, len(l.stats.Remotes))
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
