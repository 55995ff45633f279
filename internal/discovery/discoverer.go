package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/dirsync/internal/peer"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Minute
)

type Handshaker interface {
	Handshake(ctx context.Context, ip string) (*peer.Device, error)
}

type Options struct {
	ProbeConcurrency int
	CacheTTL         time.Duration

	// LocalIP overrides interface lookup.
	LocalIP func() (string, error)
}

// Result describes one discovery run. Each stage may come back empty.
type Result struct {
	LocalIP   string
	Reachable []string
	Devices   []peer.Device
}

type Discoverer struct {
	prober      Prober
	handshaker  Handshaker
	localIP     func() (string, error)
	concurrency int

	// ip -> device answered on the last handshake
	cache *expirable.LRU[string, peer.Device]
}

func New(prober Prober, handshaker Handshaker, opts Options) *Discoverer {
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = DefaultProbeConcurrency
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.LocalIP == nil {
		opts.LocalIP = LocalIP
	}

	return &Discoverer{
		prober:      prober,
		handshaker:  handshaker,
		localIP:     opts.LocalIP,
		concurrency: opts.ProbeConcurrency,
		cache:       expirable.NewLRU[string, peer.Device](defaultCacheSize, nil, opts.CacheTTL),
	}
}

// Discover sweeps the local subnet and handshakes every host that answered.
// Only a missing local address or a cancelled ctx is an error; unreachable
// hosts and failed handshakes are silently dropped.
func (d *Discoverer) Discover(ctx context.Context) (*Result, error) {
	localIP, err := d.localIP()
	if err != nil {
		return &Result{}, err
	}

	res := &Result{LocalIP: localIP}
	slog.Info("device discovery start", "local", localIP)

	reachable, err := SweepSubnet(ctx, localIP, d.prober, d.concurrency)
	if err != nil {
		return res, fmt.Errorf("sweep %s: %w", localIP, err)
	}
	res.Reachable = reachable

	res.Devices, err = d.handshakeAll(ctx, reachable)
	if err != nil {
		return res, err
	}

	slog.Info("device discovery done", "reachable", len(res.Reachable), "devices", len(res.Devices))
	return res, nil
}

func (d *Discoverer) handshakeAll(ctx context.Context, ips []string) ([]peer.Device, error) {
	var (
		mu      sync.Mutex
		devices = make(map[int64]peer.Device)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, ip := range ips {
		g.Go(func() error {
			dev, ok := d.handshake(gctx, ip)
			if !ok {
				return nil
			}
			mu.Lock()
			devices[dev.ID] = dev
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]peer.Device, 0, len(devices))
	for _, dev := range devices {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Discoverer) handshake(ctx context.Context, ip string) (peer.Device, bool) {
	if dev, ok := d.cache.Get(ip); ok {
		return dev, true
	}

	dev, err := d.handshaker.Handshake(ctx, ip)
	if err != nil {
		slog.Debug("handshake failed", "ip", ip, "error", err)
		return peer.Device{}, false
	}

	d.cache.Add(ip, *dev)
	return *dev, true
}

// Forget drops a cached handshake.
func (d *Discoverer) Forget(ip string) {
	d.cache.Remove(ip)
}
