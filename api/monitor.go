package api

import (
	"sync"
	"sync/atomic"
	"time"
)

// FirmwareAspect is a go-monitor aspect that counts firmware downloads
// and reports what the watcher last saw of the artifact.
type FirmwareAspect struct {
	downloads   uint64
	bytesServed uint64
	notFound    uint64
	readErrors  uint64

	mu        sync.Mutex
	present   bool
	size      int64
	modTime   time.Time
	checkedAt time.Time
}

// FirmwareStats is the JSON document served below /firmware on the
// monitor port.
type FirmwareStats struct {
	Downloads   uint64    `json:"downloads"`
	BytesServed uint64    `json:"bytes_served"`
	NotFound    uint64    `json:"not_found"`
	ReadErrors  uint64    `json:"read_errors"`
	Present     bool      `json:"present"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	CheckedAt   time.Time `json:"checked_at"`
}

func NewFirmwareAspect() *FirmwareAspect {
	return &FirmwareAspect{}
}

func (a *FirmwareAspect) served(n int64) {
	atomic.AddUint64(&a.downloads, 1)
	atomic.AddUint64(&a.bytesServed, uint64(n))
}

func (a *FirmwareAspect) missed() {
	atomic.AddUint64(&a.notFound, 1)
}

func (a *FirmwareAspect) failed() {
	atomic.AddUint64(&a.readErrors, 1)
}

// Refresh stats the artifact and records whether it is present.
func (a *FirmwareAspect) Refresh(fw *Firmware) {
	info, err := fw.Stat()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkedAt = time.Now()
	if err != nil {
		a.present = false
		a.size = 0
		a.modTime = time.Time{}
		return
	}
	a.present = true
	a.size = info.Size()
	a.modTime = info.ModTime()
}

func (a *FirmwareAspect) GetStats() interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return FirmwareStats{
		Downloads:   atomic.LoadUint64(&a.downloads),
		BytesServed: atomic.LoadUint64(&a.bytesServed),
		NotFound:    atomic.LoadUint64(&a.notFound),
		ReadErrors:  atomic.LoadUint64(&a.readErrors),
		Present:     a.present,
		Size:        a.size,
		ModTime:     a.modTime,
		CheckedAt:   a.checkedAt,
	}
}

func (a *FirmwareAspect) Name() string {
	return "firmware"
}

func (a *FirmwareAspect) InRoot() bool {
	return false
}
