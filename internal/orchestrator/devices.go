package orchestrator

import (
	"context"
	"errors"
	"slices"

	"github.com/openmined/dirsync/internal/discovery"
	"github.com/openmined/dirsync/internal/peer"
)

// TrackNewDevice pairs device.
func (o *Orchestrator) TrackNewDevice(device peer.Device) error {
	return o.call(func() error {
		o.spawn(func(ctx context.Context) func() {
			added, err := o.store.TrackNewDevice(device)
			return func() {
				switch {
				case err != nil:
					o.fail("Failed to pair %s: %v", device.Name, err)
				case !added:
					o.warn("%s is already paired", device.Name)
				default:
					o.info("Paired %s", device.Name)
				}
				o.reloadDevices()
			}
		})
		return nil
	})
}

// GetOnlineDevices sweeps the local network for peers. Every outcome short of
// finding devices is reported as a message, never as an error.
func (o *Orchestrator) GetOnlineDevices() error {
	return o.call(func() error {
		if o.discoverer == nil {
			return o.reject(ErrNoDiscovery)
		}

		o.info("Searching for devices")
		o.spawn(func(ctx context.Context) func() {
			res, err := o.discoverer.Discover(ctx)
			return func() {
				devices := []peer.Device{}
				switch {
				case errors.Is(err, discovery.ErrNoLocalIP):
					o.warn("No network connection")
				case err != nil:
					o.warn("Device search stopped: %v", err)
				case len(res.Reachable) == 0:
					o.info("No devices reachable")
				case len(res.Devices) == 0:
					o.info("No devices found")
				default:
					devices = slices.Clone(res.Devices)
					o.info("Found %s", plural(len(devices), "device"))
				}
				o.onlineDevices.Set(devices)
			}
		})
		return nil
	})
}

func (o *Orchestrator) reloadDevices() {
	devices := o.store.GetTrackedDevices().ToSlice()
	slices.SortFunc(devices, func(a, b peer.Device) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	o.pairedDevices.Set(devices)
}
