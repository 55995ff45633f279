// Package peer describes sibling installations of dirsync on the local
// network and the unauthenticated HTTP handshake used to identify them.
package peer

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Device is a remote installation. Two devices are the same device iff their
// ids match; the name is informational.
type Device struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (d Device) Equal(other Device) bool {
	return d.ID == other.ID
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%d)", d.Name, d.ID)
}

// NewDeviceID returns a random non-negative id. Ids are drawn once per server
// boot, so a device's identity does not survive a restart.
func NewDeviceID() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint64(u[:8]) & (1<<63 - 1))
}
