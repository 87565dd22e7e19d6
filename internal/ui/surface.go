// ABOUTME: Interactive surface boundary used by the World
// ABOUTME: Defines the Surface contract and the optional annotation hook
package ui

// Surface dimensions in pixels
const (
	Width  = 240
	Height = 320
)

// Surface is a device's window: a pointer, an escape key and a framebuffer
type Surface interface {
	IsOpen() bool
	IsEscapePressed() bool
	IsPointerDown() bool
	// Present shows one frame of Width*Height 0xRRGGBB pixels
	Present(pixels []uint32) error
}

// Annotation is the text a surface can show next to its frame
type Annotation struct {
	Show      string // latest click count line
	Recording bool
	Captured  uint64 // packets produced by capture
	Played    uint64 // packets taken by playback
	Underrun  uint64 // silence samples written for lack of data
}

// Annotator is implemented by surfaces that can display an Annotation
type Annotator interface {
	Annotate(Annotation)
}
