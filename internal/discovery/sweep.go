// Package discovery finds other dirsync installations on the local /24 by
// probing every neighbour address and handshaking with those that answer.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultProbeTimeout     = 300 * time.Millisecond
	DefaultProbeConcurrency = 50

	gatewayHost = 1
	lastHost    = 254
)

var (
	ErrNoLocalIP    = errors.New("no active IPv4 network interface")
	ErrNotIPv4      = errors.New("not an IPv4 address")
	ErrBadBoundSize = errors.New("probe concurrency must be positive")
)

// Prober reports whether a host answers at all.
type Prober interface {
	Probe(ctx context.Context, ip string) bool
}

type ProbeFunc func(ctx context.Context, ip string) bool

func (f ProbeFunc) Probe(ctx context.Context, ip string) bool {
	return f(ctx, ip)
}

// TCPProber dials Port. A refused connection still proves the host is up.
type TCPProber struct {
	Port    int
	Timeout time.Duration
}

func (p TCPProber) Probe(ctx context.Context, ip string) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(p.Port)))
	if err == nil {
		conn.Close()
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// LocalIP returns the first IPv4 address of an interface that is up and not
// a loopback.
func LocalIP() (string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	return pickIPv4(ifaces)
}

func pickIPv4(ifaces psnet.InterfaceStatList) (string, error) {
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			prefix, err := netip.ParsePrefix(a.Addr)
			var addr netip.Addr
			if err == nil {
				addr = prefix.Addr()
			} else if addr, err = netip.ParseAddr(a.Addr); err != nil {
				continue
			}
			if addr.Is4() && !addr.IsLoopback() && !addr.IsLinkLocalUnicast() {
				return addr.String(), nil
			}
		}
	}
	return "", ErrNoLocalIP
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// Candidates lists the /24 neighbours of localIP that a sweep probes: hosts
// .2 through .254, minus localIP itself.
func Candidates(localIP string) ([]string, error) {
	addr, err := netip.ParseAddr(localIP)
	if err != nil {
		return nil, err
	}
	if !addr.Is4() {
		return nil, fmt.Errorf("%w: %s", ErrNotIPv4, localIP)
	}

	octets := addr.As4()
	out := make([]string, 0, lastHost-gatewayHost)
	for host := gatewayHost + 1; host <= lastHost; host++ {
		if int(octets[3]) == host {
			continue
		}
		ip := netip.AddrFrom4([4]byte{octets[0], octets[1], octets[2], byte(host)})
		out = append(out, ip.String())
	}
	return out, nil
}

// SweepSubnet probes every candidate of localIP with at most concurrency
// probes in flight and returns the ones that answered, in address order.
func SweepSubnet(ctx context.Context, localIP string, prober Prober, concurrency int) ([]string, error) {
	if concurrency <= 0 {
		return nil, ErrBadBoundSize
	}

	candidates, err := Candidates(localIP)
	if err != nil {
		return nil, err
	}

	tStart := time.Now()
	var (
		mu        sync.Mutex
		reachable []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, ip := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if prober.Probe(gctx, ip) {
				mu.Lock()
				reachable = append(reachable, ip)
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(reachable, func(i, j int) bool {
		a, _ := netip.ParseAddr(reachable[i])
		b, _ := netip.ParseAddr(reachable[j])
		return a.Less(b)
	})

	slog.Debug("subnet sweep", "local", localIP, "probed", len(candidates), "reachable", len(reachable), "elapsed", time.Since(tStart))
	return reachable, nil
}
