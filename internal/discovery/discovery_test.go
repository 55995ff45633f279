package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmined/dirsync/internal/peer"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates(t *testing.T) {
	ips, err := Candidates("192.168.1.37")
	require.NoError(t, err)

	assert.Len(t, ips, 252)
	assert.Equal(t, "192.168.1.2", ips[0])
	assert.Equal(t, "192.168.1.254", ips[len(ips)-1])
	assert.NotContains(t, ips, "192.168.1.1")
	assert.NotContains(t, ips, "192.168.1.37")
	assert.NotContains(t, ips, "192.168.1.0")
	assert.NotContains(t, ips, "192.168.1.255")

	_, err = Candidates("fe80::1")
	assert.ErrorIs(t, err, ErrNotIPv4)

	_, err = Candidates("not-an-ip")
	assert.Error(t, err)
}

// boundedProber records the peak number of concurrent probes.
type boundedProber struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	probed   map[string]bool
	up       map[string]bool
}

func (p *boundedProber) Probe(ctx context.Context, ip string) bool {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	p.probed[ip] = true
	p.mu.Unlock()

	time.Sleep(2 * time.Millisecond)
	return p.up[ip]
}

func TestSweepSubnetBoundsAndExclusions(t *testing.T) {
	p := &boundedProber{
		probed: make(map[string]bool),
		up:     map[string]bool{"10.0.0.9": true, "10.0.0.200": true, "10.0.0.30": true},
	}

	const bound = 7
	reachable, err := SweepSubnet(context.Background(), "10.0.0.30", p, bound)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.9", "10.0.0.200"}, reachable)
	assert.LessOrEqual(t, p.peak.Load(), int32(bound))
	assert.Greater(t, p.peak.Load(), int32(1))

	assert.Len(t, p.probed, 252)
	assert.False(t, p.probed["10.0.0.1"])
	assert.False(t, p.probed["10.0.0.30"])
}

func TestSweepSubnetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	prober := ProbeFunc(func(ctx context.Context, ip string) bool {
		if calls.Add(1) == 10 {
			cancel()
		}
		<-ctx.Done()
		return true
	})

	reachable, err := SweepSubnet(ctx, "10.0.0.30", prober, 50)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, reachable)
}

func TestSweepSubnetRejectsBadBound(t *testing.T) {
	_, err := SweepSubnet(context.Background(), "10.0.0.30", ProbeFunc(func(context.Context, string) bool { return true }), 0)
	assert.ErrorIs(t, err, ErrBadBoundSize)
}

func TestPickIPv4(t *testing.T) {
	ifaces := psnet.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{Name: "eth1", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "10.1.1.1/24"}}},
		{Name: "eth0", Flags: []string{"up", "broadcast"}, Addrs: psnet.InterfaceAddrList{
			{Addr: "fe80::1/64"},
			{Addr: "169.254.3.3/16"},
			{Addr: "192.168.4.20/24"},
		}},
	}

	ip, err := pickIPv4(ifaces)
	require.NoError(t, err)
	assert.Equal(t, "192.168.4.20", ip)

	_, err = pickIPv4(ifaces[:2])
	assert.ErrorIs(t, err, ErrNoLocalIP)
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	p := TCPProber{Port: port, Timeout: time.Second}
	assert.True(t, p.Probe(context.Background(), "127.0.0.1"))

	// nothing listens here, but the host still refuses, so it is up
	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	p = TCPProber{Port: closedPort, Timeout: time.Second}
	assert.True(t, p.Probe(context.Background(), "127.0.0.1"))
}

type fakeHandshaker struct {
	mu      sync.Mutex
	calls   map[string]int
	devices map[string]peer.Device
}

func (f *fakeHandshaker) Handshake(ctx context.Context, ip string) (*peer.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ip]++
	dev, ok := f.devices[ip]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return &dev, nil
}

func TestDiscover(t *testing.T) {
	up := map[string]bool{"10.0.0.2": true, "10.0.0.3": true, "10.0.0.4": true}
	prober := ProbeFunc(func(ctx context.Context, ip string) bool { return up[ip] })
	hs := &fakeHandshaker{
		calls: make(map[string]int),
		devices: map[string]peer.Device{
			"10.0.0.2": {ID: 2, Name: "laptop"},
			"10.0.0.4": {ID: 4, Name: "phone"},
		},
	}

	d := New(prober, hs, Options{
		ProbeConcurrency: 10,
		LocalIP:          func() (string, error) { return "10.0.0.50", nil },
	})

	res, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.50", res.LocalIP)
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"}, res.Reachable)
	assert.Equal(t, []peer.Device{{ID: 2, Name: "laptop"}, {ID: 4, Name: "phone"}}, res.Devices)

	// successful handshakes are cached, failed ones retried
	_, err = d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hs.calls["10.0.0.2"])
	assert.Equal(t, 2, hs.calls["10.0.0.3"])

	d.Forget("10.0.0.2")
	_, err = d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, hs.calls["10.0.0.2"])
}

func TestDiscoverNoLocalIP(t *testing.T) {
	d := New(ProbeFunc(func(context.Context, string) bool { return true }), &fakeHandshaker{}, Options{
		LocalIP: func() (string, error) { return "", ErrNoLocalIP },
	})

	res, err := d.Discover(context.Background())
	assert.ErrorIs(t, err, ErrNoLocalIP)
	require.NotNil(t, res)
	assert.Empty(t, res.Devices)
}
