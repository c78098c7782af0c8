// Package interactive provides the interactive command-line interface
// for sapi-device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/discovery"
	"github.com/sapi-coap/sapi-go/pkg/examples"
	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/observe"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
	"github.com/sapi-coap/sapi-go/pkg/service"
	"github.com/sapi-coap/sapi-go/pkg/version"
	"github.com/sapi-coap/sapi-go/pkg/wire"
)

// Peer is the peer name used for requests issued from the console.
const Peer = "console"

// Options configures the console.
type Options struct {
	// Interface restricts the browse command to one network interface.
	Interface string
}

// Device handles interactive mode for sapi-device.
type Device struct {
	svc  *service.DeviceService
	opts Options
	rl   *readline.Instance

	// Token of the console's own observe relation per device type.
	watches map[string][]byte
}

// New creates a new interactive device console.
func New(svc *service.DeviceService, opts Options) (*Device, error) {
	d := &Device{
		svc:     svc,
		opts:    opts,
		watches: make(map[string][]byte),
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    d.completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	d.rl = rl

	return d, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
func (d *Device) Stdout() io.Writer {
	return d.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (d *Device) Stderr() io.Writer {
	return d.rl.Stderr()
}

func (d *Device) completer() readline.AutoCompleter {
	types := readline.PcItemDynamic(func(string) []string {
		return d.svc.Registry().DeviceTypes()
	})
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("list"),
		readline.PcItem("get", types),
		readline.PcItem("config", types),
		readline.PcItem("set", types),
		readline.PcItem("push", types),
		readline.PcItem("watch", types),
		readline.PcItem("unwatch", types),
		readline.PcItem("observers"),
		readline.PcItem("browse"),
		readline.PcItem("status"),
		readline.PcItem("quit"),
	)
}

// Run starts the interactive command loop.
func (d *Device) Run(ctx context.Context, cancel context.CancelFunc) {
	defer d.rl.Close()

	d.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := d.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(d.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if !d.Exec(ctx, line) {
			fmt.Fprintln(d.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should exit.
func (d *Device) Exec(ctx context.Context, line string) bool {
	return exec(ctx, d.svc, d.opts, d.watches, d.rl.Stdout(), line)
}

func exec(ctx context.Context, svc *service.DeviceService, opts Options, watches map[string][]byte, w io.Writer, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	c := &commands{svc: svc, opts: opts, watches: watches, w: w}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(w)
	case "list", "ls":
		c.list()
	case "get", "g":
		c.get(ctx, args)
	case "config", "c":
		c.config(ctx, args)
	case "set":
		c.set(args)
	case "push", "p":
		c.push(args)
	case "watch":
		c.watch(ctx, args)
	case "unwatch":
		c.unwatch(ctx, args)
	case "observers", "o":
		c.observers()
	case "browse", "b":
		c.browse(ctx)
	case "status":
		c.status()
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (d *Device) printHelp() {
	printHelp(d.rl.Stdout())
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `
SAPI Device Commands:
  Sensors:
    list                     - List registered sensors
    get <type>               - Read a sensor (GET /<type>)
    config <type> [k=v;...]  - Read or write sensor config (/<type>/config)
    set <type> <value>       - Set a simulated sensor value

  Observe:
    observers                - List active observe relations
    push <type>              - Notify observers of <type> now
    watch <type>             - Observe <type> from the console
    unwatch <type>           - Cancel the console's observation

  Network:
    browse                   - Browse for SAPI devices via mDNS

  General:
    status                   - Show service status
    help                     - Show this help
    quit                     - Exit device`)
}

// commands carries the state a single command needs.
type commands struct {
	svc     *service.DeviceService
	opts    Options
	watches map[string][]byte
	w       io.Writer
}

func (c *commands) list() {
	entries := c.svc.Registry().Entries()
	if len(entries) == 0 {
		fmt.Fprintln(c.w, "No sensors registered")
		return
	}
	fmt.Fprintf(c.w, "%-3s %-20s %-10s %-9s %s\n", "ID", "TYPE", "FREQUENCY", "OBSERVED", "CAPABILITIES")
	for _, e := range entries {
		freq := "-"
		if e.Frequency > 0 {
			freq = e.Interval().String()
		}
		observed := "no"
		if e.Observer {
			observed = fmt.Sprintf("slot %d", e.ObserverID)
		}
		fmt.Fprintf(c.w, "%-3d %-20s %-10s %-9s %s\n", e.ID, e.DeviceType, freq, observed, capabilities(e.Driver))
	}
}

func capabilities(drv sensor.Driver) string {
	caps := []string{"read"}
	if _, ok := drv.(sensor.Initializer); ok {
		caps = append(caps, "init")
	}
	if _, ok := drv.(sensor.ConfigReader); ok {
		caps = append(caps, "read-config")
	}
	if _, ok := drv.(sensor.ConfigWriter); ok {
		caps = append(caps, "write-config")
	}
	return strings.Join(caps, ",")
}

func (c *commands) get(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.w, "Usage: get <type>")
		return
	}
	c.request(ctx, &interaction.Request{
		Method: codes.GET,
		Path:   []string{args[0]},
		Peer:   Peer,
	})
}

func (c *commands) config(ctx context.Context, args []string) {
	switch len(args) {
	case 1:
		c.request(ctx, &interaction.Request{
			Method: codes.GET,
			Path:   []string{args[0], sensor.ConfigSegment},
			Peer:   Peer,
		})
	case 2:
		c.request(ctx, &interaction.Request{
			Method:  codes.PUT,
			Path:    []string{args[0], sensor.ConfigSegment},
			Payload: []byte(args[1]),
			Peer:    Peer,
		})
	default:
		fmt.Fprintln(c.w, "Usage: config <type> [key=value;...]")
	}
}

func (c *commands) request(ctx context.Context, req *interaction.Request) {
	start := time.Now()
	resp := c.svc.HandleRequest(ctx, req)
	elapsed := time.Since(start)

	fmt.Fprintf(c.w, "%s %s -> %s (%s)\n", req.Method, "/"+req.PathString(), resp.Code, elapsed.Round(time.Microsecond))
	if len(resp.Payload) > 0 {
		fmt.Fprintf(c.w, "  %s\n", formatPayload(resp.Payload))
	}
}

// formatPayload renders an envelope, falling back to the raw text.
func formatPayload(p []byte) string {
	if env, err := wire.Decode(p); err == nil {
		return env.String()
	}
	return strconv.Quote(string(p))
}

func (c *commands) set(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.w, "Usage: set <type> <value>")
		return
	}
	sim, err := c.simulated(args[0])
	if err != nil {
		fmt.Fprintf(c.w, "Error: %v\n", err)
		return
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.w, "Invalid value: %s\n", args[1])
		return
	}
	sim.Set(v)
	fmt.Fprintf(c.w, "%s set to %g\n", args[0], sim.Value())
}

func (c *commands) simulated(deviceType string) (*examples.Simulated, error) {
	reg := c.svc.Registry()
	id, err := reg.LookupByURI(deviceType)
	if err != nil {
		return nil, err
	}
	e, err := reg.Get(id)
	if err != nil {
		return nil, err
	}
	sim, ok := e.Driver.(*examples.Simulated)
	if !ok {
		return nil, fmt.Errorf("%s is not a simulated sensor", deviceType)
	}
	return sim, nil
}

func (c *commands) push(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.w, "Usage: push <type>")
		return
	}
	if err := c.svc.PushNotification(args[0]); err != nil {
		fmt.Fprintf(c.w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.w, "Notification queued for %s\n", args[0])
}

func (c *commands) watch(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.w, "Usage: watch <type>")
		return
	}
	deviceType := args[0]
	id := uuid.New()
	token := id[:8]

	w := c.w
	sink := observe.SinkFunc(func(ctx context.Context, n observe.Notification) error {
		fmt.Fprintf(w, "[%s] seq=%d %s\n", n.DeviceType, n.Sequence, formatPayload(n.Payload))
		return nil
	})

	resp := c.svc.HandleRequest(ctx, &interaction.Request{
		Method:     codes.GET,
		Path:       []string{deviceType},
		Observe:    observe.Register,
		HasObserve: true,
		Token:      token,
		Peer:       Peer,
		Sink:       sink,
	})
	if resp.Code != codes.Content {
		fmt.Fprintf(c.w, "Watch failed: %s\n", resp.Code)
		return
	}
	if !resp.HasObserve {
		fmt.Fprintln(c.w, "Sensor answered without an observe relation")
		return
	}
	c.watches[deviceType] = token
	fmt.Fprintf(c.w, "Watching %s: %s\n", deviceType, formatPayload(resp.Payload))
}

func (c *commands) unwatch(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.w, "Usage: unwatch <type>")
		return
	}
	token, ok := c.watches[args[0]]
	if !ok {
		fmt.Fprintf(c.w, "Not watching %s\n", args[0])
		return
	}
	delete(c.watches, args[0])
	n := c.svc.Reset(ctx, Peer, token)
	fmt.Fprintf(c.w, "Cancelled %d relation(s)\n", n)
}

func (c *commands) observers() {
	obs := c.svc.Observers()
	if len(obs) == 0 {
		fmt.Fprintln(c.w, "No active observers")
		return
	}
	reg := c.svc.Registry()
	fmt.Fprintf(c.w, "%-4s %-20s %-24s %-18s %s\n", "SLOT", "TYPE", "PEER", "TOKEN", "SINCE")
	for _, o := range obs {
		deviceType := "?"
		if e, err := reg.Get(o.SensorID); err == nil {
			deviceType = e.DeviceType
		}
		fmt.Fprintf(c.w, "%-4d %-20s %-24s %-18x %s\n",
			o.ObserverID, deviceType, o.Relation.Peer, o.Relation.Token,
			o.Relation.Since.Format(time.TimeOnly))
	}
}

func (c *commands) browse(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, discovery.BrowseTimeout)
	defer cancel()

	services, err := discovery.Browse(ctx, discovery.BrowserConfig{Interface: c.opts.Interface})
	if err != nil {
		fmt.Fprintf(c.w, "Browse failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.w, "Browsing for %s (%s)...\n", discovery.ServiceType, discovery.BrowseTimeout)
	var found []*discovery.Service
	for svc := range services {
		found = append(found, svc)
	}
	if len(found) == 0 {
		fmt.Fprintln(c.w, "No devices found")
		return
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Instance < found[j].Instance })

	current := version.Current()
	for _, s := range found {
		compat := "compatible"
		if v, err := version.Parse(s.DeviceInfo.Version); err != nil {
			compat = "unknown version"
		} else if !current.Compatible(v) {
			compat = "incompatible " + v.String()
		}
		fmt.Fprintf(c.w, "  %s  %s:%d  [%s]  %s\n",
			s.Instance, s.Host, s.Port, strings.Join(s.DeviceInfo.DeviceTypes, ","), compat)
	}
}

func (c *commands) status() {
	fmt.Fprintln(c.w, version.String())
	fmt.Fprintf(c.w, "State:     %s\n", c.svc.State())
	reg := c.svc.Registry()
	fmt.Fprintf(c.w, "Sensors:   %d/%d\n", reg.Count(), reg.Capacity())
	fmt.Fprintf(c.w, "Observers: %d\n", len(c.svc.Observers()))
	if len(c.watches) > 0 {
		types := make([]string, 0, len(c.watches))
		for t := range c.watches {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Fprintf(c.w, "Watching:  %s\n", strings.Join(types, ", "))
	}
}
