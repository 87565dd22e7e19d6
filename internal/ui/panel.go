// ABOUTME: Panel is a Surface whose inputs are set programmatically
// ABOUTME: Used directly for headless runs and as the per-device state of the terminal UI
package ui

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Panel is a thread-safe Surface. Inputs are driven by Press/Release/Close
// from any goroutine; the World reads them on its tick.
type Panel struct {
	name string

	closed  atomic.Bool
	escape  atomic.Bool
	pointer atomic.Bool
	pressed atomic.Bool // a press not yet seen by IsPointerDown
	frames  atomic.Uint64

	mu         sync.Mutex
	color      uint32
	annotation Annotation
}

// NewPanel creates an open panel for the named device
func NewPanel(name string) *Panel {
	return &Panel{name: name}
}

// NewHeadless creates one panel per device name
func NewHeadless(names ...string) []*Panel {
	panels := make([]*Panel, len(names))
	for i, name := range names {
		panels[i] = NewPanel(name)
	}
	return panels
}

func (p *Panel) IsOpen() bool { return !p.closed.Load() }
func (p *Panel) IsEscapePressed() bool { return p.escape.Load() }

// IsPointerDown reports whether the pointer is held, or was pressed since
// the previous call. A press and release that both land between two reads
// still show up as one down reading.
func (p *Panel) IsPointerDown() bool {
	latched := p.pressed.Swap(false)
	return p.pointer.Load() || latched
}

func (p *Panel) Present(pixels []uint32) error {
	if len(pixels) != Width*Height {
		return fmt.Errorf("frame has %d pixels, want %d", len(pixels), Width*Height)
	}

	p.mu.Lock()
	p.color = pixels[len(pixels)/2] & 0xffffff
	p.mu.Unlock()

	p.frames.Add(1)
	return nil
}

func (p *Panel) Annotate(a Annotation) {
	p.mu.Lock()
	p.annotation = a
	p.mu.Unlock()
}

// Name returns the device label
func (p *Panel) Name() string { return p.name }

// Press holds the pointer down
func (p *Panel) Press() {
	p.pointer.Store(true)
	p.pressed.Store(true)
}

// Held reports the current pointer level without consuming a pending press
func (p *Panel) Held() bool { return p.pointer.Load() }

// Release lets the pointer go
func (p *Panel) Release() { p.pointer.Store(false) }

// PressEscape marks escape as pressed
func (p *Panel) PressEscape() { p.escape.Store(true) }

// Close closes the panel
func (p *Panel) Close() { p.closed.Store(true) }

// Frames returns the number of frames presented
func (p *Panel) Frames() uint64 { return p.frames.Load() }

// Color returns the color at the center of the last frame
func (p *Panel) Color() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.color
}

// Annotation returns the latest annotation
func (p *Panel) Annotation() Annotation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.annotation
}
