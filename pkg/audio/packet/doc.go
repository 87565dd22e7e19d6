// ABOUTME: Packetization package for the realtime audio pipeline
// ABOUTME: Provides packetizer, depacketizer and the lock-free queue between them
// Package packet moves audio between realtime callbacks and pipeline goroutines.
//
// On capture, a Packetizer groups samples into fixed-length packets and pushes
// them into a Queue. On playback, a Depacketizer drains a Queue sample by sample
// and writes silence whenever nothing is queued. There is no resampling or time
// stretching, so a starved queue is heard as a dropout and counted by Underrun.
//
// Example:
//
//	captured := packet.NewQueue[audio.Packet]()
//	p := packet.NewPacketizer(audio.PacketLength(format, 10), captured)
//	p.Write(samples) // from the capture callback
//
//	d := packet.NewDepacketizer(playback, 0)
//	d.Fill(out) // from the playback callback
package packet
