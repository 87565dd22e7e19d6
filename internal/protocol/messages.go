// ABOUTME: Event vocabularies for each hop of the device pipeline
// ABOUTME: Every hop has its own closed set of event types; nothing is shared globally
package protocol

import (
	"github.com/hactar-dev/hactar-sim/internal/mailbox"
	"github.com/hactar-dev/hactar-sim/pkg/audio"
)

// WorldToView is an event raised by the World
type WorldToView interface{ worldToView() }

// WorldClick is raised once per pointer press
type WorldClick struct{}

// WorldAudio carries a packet completed by the capture callback
type WorldAudio struct{ Packet audio.Packet }

func (WorldClick) worldToView() {}
func (WorldAudio) worldToView() {}

// ViewToWorld is an event delivered to the World
type ViewToWorld interface{ viewToWorld() }

// WorldShow asks the World to display a click count
type WorldShow struct {
	Name  string
	Count int
}

// WorldStartRecording resumes the capture stream
type WorldStartRecording struct{}

// WorldStopRecording pauses the capture stream
type WorldStopRecording struct{}

// WorldPlay queues a packet for playback
type WorldPlay struct{ Packet audio.Packet }

func (WorldShow) viewToWorld()           {}
func (WorldStartRecording) viewToWorld() {}
func (WorldStopRecording) viewToWorld()  {}
func (WorldPlay) viewToWorld()           {}

// ViewToController is an event the View hands to the Controller
type ViewToController interface{ viewToController() }

// ControllerClick is a local click
type ControllerClick struct{}

// ControllerAudio is a locally captured packet
type ControllerAudio struct{ Packet audio.Packet }

func (ControllerClick) viewToController() {}
func (ControllerAudio) viewToController() {}

// ControllerToView is an event the Controller hands to the View
type ControllerToView interface{ controllerToView() }

// ViewShow reports the click count for Name
type ViewShow struct {
	Name  string
	Count int
}

// ViewStartRecording starts local capture
type ViewStartRecording struct{}

// ViewStopRecording stops local capture
type ViewStopRecording struct{}

// ViewAudio carries a packet received from the peer
type ViewAudio struct{ Packet audio.Packet }

func (ViewShow) controllerToView()           {}
func (ViewStartRecording) controllerToView() {}
func (ViewStopRecording) controllerToView()  {}
func (ViewAudio) controllerToView()          {}

// NetworkEvent travels between Controllers over the network
type NetworkEvent interface{ networkEvent() }

// NetClick announces a click made on the device called Name
type NetClick struct{ Name string }

// NetAudio carries one captured packet
type NetAudio struct{ Packet audio.Packet }

func (NetClick) networkEvent() {}
func (NetAudio) networkEvent() {}

// Attachment is a Controller's connection point to the network.
// Outbound yields what the device sends; Inbound accepts what it receives.
type Attachment struct {
	Outbound *mailbox.Receiver[NetworkEvent]
	Inbound  *mailbox.Sender[NetworkEvent]
}
