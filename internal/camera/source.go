// Package camera provides frame sources for the capture loop.
//
// A Source delivers raw RGB24 frames on a channel. Sends are always
// non-blocking: if the consumer lags, frames are dropped, never queued.
// The capture scheduler reads the newest frame through a Latest mailbox
// (see latest.go), so a slow encode/send cycle only ever costs frames,
// never latency.
package camera

import (
	"context"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// Source is the interface all camera providers implement
type Source interface {
	// Start begins frame production. Frames() is valid after Start returns.
	Start(ctx context.Context) error
	// Frames returns the channel of captured frames. Closed on Stop.
	Frames() <-chan types.Frame
	// Stop shuts the source down. Safe to call once Start has returned.
	Stop() error
	// Stats returns a snapshot of source statistics
	Stats() types.CameraStats
}
