package model

import "time"

// Window is one of the eight fixed relative measurement offsets after
// publish time.
type Window string

const (
	Window0h  Window = "0h"
	Window1h  Window = "1h"
	Window6h  Window = "6h"
	Window12h Window = "12h"
	Window24h Window = "24h"
	Window48h Window = "48h"
	Window7d  Window = "7d"
	Window14d Window = "14d"
)

// FinalWindow is the last measurement window; once it resolves the video's
// tracking is complete.
const FinalWindow = Window14d

// windowOffsets maps each window to its offset from publish time.
var windowOffsets = map[Window]time.Duration{
	Window0h:  0,
	Window1h:  1 * time.Hour,
	Window6h:  6 * time.Hour,
	Window12h: 12 * time.Hour,
	Window24h: 24 * time.Hour,
	Window48h: 48 * time.Hour,
	Window7d:  7 * 24 * time.Hour,
	Window14d: 14 * 24 * time.Hour,
}

// Windows returns all measurement windows in chronological order.
func Windows() []Window {
	return []Window{Window0h, Window1h, Window6h, Window12h, Window24h, Window48h, Window7d, Window14d}
}

// Offset returns the window's offset from publish time.
func (w Window) Offset() time.Duration {
	return windowOffsets[w]
}

// Valid reports whether w is one of the eight known windows.
func (w Window) Valid() bool {
	_, ok := windowOffsets[w]
	return ok
}

// MeasurementStatus is the state of a scheduled measurement. Every status
// other than pending is terminal.
type MeasurementStatus string

const (
	MeasurementPending   MeasurementStatus = "pending"
	MeasurementCompleted MeasurementStatus = "completed"
	MeasurementFailed    MeasurementStatus = "failed"
	MeasurementSkipped   MeasurementStatus = "skipped"
)

// Terminal reports whether the status will never change again.
func (s MeasurementStatus) Terminal() bool {
	return s != MeasurementPending
}

// ScheduledMeasurement is one planned stat capture for a video at a fixed
// window. Exactly one exists per (video, window) pair, created together with
// the video.
type ScheduledMeasurement struct {
	ID        string            `json:"id"`
	VideoID   string            `json:"video_id"`
	Window    Window            `json:"window"`
	DueAt     time.Time         `json:"due_at"`
	Status    MeasurementStatus `json:"status"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
}
