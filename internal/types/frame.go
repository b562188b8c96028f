package types

import "time"

// Frame represents a single raw camera frame
type Frame struct {
	// Seq is the monotonic sequence number assigned by the camera source
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the frame data (RGB24, 3 bytes per pixel)
	Data []byte
	// TraceID is a unique identifier for tracing a frame through the pipeline
	TraceID string
}

// CameraStats contains camera source statistics
type CameraStats struct {
	FrameCount  uint64
	FPSTarget   int
	FPSReal     float64
	Resolution  string
	Reconnects  uint32
	BytesRead   uint64
	IsRunning   bool
}
