package discovery

import (
	"context"
	"net"
	"slices"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures Browse.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string
}

// Browse emits SAPI devices found on the network until ctx is done.
// Entries for the same instance seen on several interfaces are merged; the
// first sighting is emitted, later ones only add addresses.
func Browse(ctx context.Context, config BrowserConfig) (<-chan *Service, error) {
	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		defer close(out)

		seen := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := seen[svc.Instance]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				seen[svc.Instance] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if ok {
					delete(seen, entry.Instance)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// entryToService converts a zeroconf entry. Entries without SAPI TXT
// records yield nil.
func entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}
	info.Instance = entry.Instance
	info.Port = entry.Port

	return &Service{
		Instance:   entry.Instance,
		Host:       entry.HostName,
		Port:       entry.Port,
		Addresses:  ipStrings(entry.AddrIPv4, entry.AddrIPv6),
		DeviceInfo: *info,
	}
}

func ipStrings(lists ...[]net.IP) []string {
	var out []string
	for _, l := range lists {
		for _, ip := range l {
			out = append(out, ip.String())
		}
	}
	return out
}

func mergeAddresses(existing, add []string) []string {
	for _, a := range add {
		if !slices.Contains(existing, a) {
			existing = append(existing, a)
		}
	}
	return existing
}
