// Package discovery finds swipechat backends on the local network via mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_swipechat._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultScanTimeout bounds each lookup.
	DefaultScanTimeout = 3 * time.Second
	// DefaultAPIPath is assumed when a server omits api_path.
	DefaultAPIPath = "/api"
	// DefaultSocketPath is assumed when a server omits socket_path.
	DefaultSocketPath = "/socket"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls announcement and lookup.
type Config struct {
	Service     string
	Domain      string
	Version     int
	ScanTimeout time.Duration

	// Announce only.
	InstanceName string
	Port         int
	APIPath      string
	SocketPath   string
	TLS          bool

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.APIPath == "" {
		out.APIPath = DefaultAPIPath
	}
	if out.SocketPath == "" {
		out.SocketPath = DefaultSocketPath
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validateForAnnounce() error {
	if strings.TrimSpace(c.InstanceName) == "" {
		return errors.New("instance name is required")
	}
	if c.Port <= 0 {
		return errors.New("port must be > 0")
	}
	return nil
}

// Server is a backend found on the local network.
type Server struct {
	Instance   string
	HostName   string
	Port       int
	Addresses  []string
	Version    int
	APIPath    string
	SocketPath string
	TLS        bool
}

// Host returns the preferred dialable host, IPv4 first.
func (s Server) Host() string {
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return strings.TrimSuffix(s.HostName, ".")
}

// BaseURL returns the REST base URL.
func (s Server) BaseURL() string {
	scheme := "http"
	if s.TLS {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(s.Host(), strconv.Itoa(s.Port)) + s.APIPath
}

// SocketURL returns the event channel URL.
func (s Server) SocketURL() string {
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	return scheme + "://" + net.JoinHostPort(s.Host(), strconv.Itoa(s.Port)) + s.SocketPath
}

// Broadcaster advertises a backend via mDNS.
type Broadcaster struct {
	server *zeroconf.Server
}

// Announce registers a backend so clients on the LAN can find it. It is
// meant for local development servers.
func Announce(config Config) (*Broadcaster, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForAnnounce(); err != nil {
		return nil, err
	}

	txt := []string{
		"version=" + strconv.Itoa(cfg.Version),
		"api_path=" + cfg.APIPath,
		"socket_path=" + cfg.SocketPath,
		"tls=" + strconv.FormatBool(cfg.TLS),
	}

	server, err := cfg.registerFn(cfg.InstanceName, cfg.Service, cfg.Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Broadcaster{server: server}, nil
}

// Stop stops broadcasting.
func (b *Broadcaster) Stop() {
	if b == nil || b.server == nil {
		return
	}
	b.server.Shutdown()
}

// Lookup browses for backends until ScanTimeout elapses or ctx is done and
// returns them sorted by instance name.
func Lookup(ctx context.Context, config Config) ([]Server, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]Server)
	var collectedMu sync.Mutex
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				server, ok := parseEntry(entry)
				if !ok {
					continue
				}
				collectedMu.Lock()
				collected[server.Instance] = server
				collectedMu.Unlock()
			}
		}
	}()

	if err := browse(scanCtx, cfg.Service, cfg.Domain, entries); err != nil {
		cancel()
		<-collectorDone
		return nil, fmt.Errorf("browse %s: %w", cfg.Service, err)
	}

	<-scanCtx.Done()
	<-collectorDone

	// A deadline just means the scan window ended.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collectedMu.Lock()
	out := make([]Server, 0, len(collected))
	for _, server := range collected {
		out = append(out, server)
	}
	collectedMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Instance < out[j].Instance
	})
	return out, nil
}

func parseEntry(entry *zeroconf.ServiceEntry) (Server, bool) {
	if entry.Port <= 0 {
		return Server{}, false
	}
	txt := txtToMap(entry.Text)

	version := 0
	if txt["version"] != "" {
		if parsed, err := strconv.Atoi(txt["version"]); err == nil {
			version = parsed
		}
	}

	addresses := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	seen := make(map[string]struct{})
	for _, group := range [][]net.IP{entry.AddrIPv4, entry.AddrIPv6} {
		sorted := make([]string, 0, len(group))
		for _, ip := range group {
			if ip == nil {
				continue
			}
			raw := ip.String()
			if _, exists := seen[raw]; exists {
				continue
			}
			seen[raw] = struct{}{}
			sorted = append(sorted, raw)
		}
		sort.Strings(sorted)
		addresses = append(addresses, sorted...)
	}
	if len(addresses) == 0 && strings.TrimSpace(entry.HostName) == "" {
		return Server{}, false
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}

	tls, _ := strconv.ParseBool(txt["tls"])
	apiPath := txt["api_path"]
	if apiPath == "" {
		apiPath = DefaultAPIPath
	}
	socketPath := txt["socket_path"]
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return Server{
		Instance:   name,
		HostName:   entry.HostName,
		Port:       entry.Port,
		Addresses:  addresses,
		Version:    version,
		APIPath:    apiPath,
		SocketPath: socketPath,
		TLS:        tls,
	}, true
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}
