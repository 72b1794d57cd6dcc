// Package discovery advertises a tracker on the local network over mDNS and
// lets peers find it without being told its address.
package discovery

import (
	"context"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
)

// Service and Domain identify trackers on the local network.
const (
	Service = "_fileshare._tcp"
	Domain  = "local."
)

// DefaultInstance is the instance name used when none is configured.
const DefaultInstance = "tracker"

// ErrNoTracker is returned by Lookup when no tracker answered in time.
var ErrNoTracker = errors.New("no tracker found on the local network")

// Config represents the mDNS options of a tracker.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"enabled":  cfg.Enabled,
		"instance": cfg.Instance,
	}
}

// Validate returns a copy of cfg with defaults filled in.
func (cfg Config) Validate() Config {
	validcfg := cfg
	if cfg.Enabled && cfg.Instance == "" {
		validcfg.Instance = DefaultInstance
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "mdns.Instance",
			"provided": cfg.Instance,
			"default":  validcfg.Instance,
		})
	}
	return validcfg
}

// Advertiser announces a tracker until stopped.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise announces a tracker listening on port under instance.
func Advertise(instance string, port uint16) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, Service, Domain, int(port), []string{"txtv=1"}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register mDNS service")
	}
	log.Info("advertising tracker over mDNS", log.Fields{"instance": instance, "port": port})
	return &Advertiser{server: server}, nil
}

// Stop withdraws the announcement.
func (a *Advertiser) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		a.server.Shutdown()
		c.Done()
	}()
	return c.Result()
}

// Lookup browses the local network and returns the address of the first
// tracker that answers before ctx is done.
func Lookup(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create mDNS resolver")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", errors.Wrap(err, "failed to browse mDNS")
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoTracker
			}
			if addr, ok := addrOf(entry); ok {
				log.Debug("found tracker", log.Fields{"instance": entry.Instance, "addr": addr})
				return addr, nil
			}
		case <-ctx.Done():
			return "", ErrNoTracker
		}
	}
}

// addrOf returns the dialable address of an entry, preferring IPv4.
func addrOf(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}

	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", false
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)), true
}
