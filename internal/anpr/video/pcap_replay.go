//go:build pcap
// +build pcap

package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/plate.report/internal/monitoring"
	"github.com/banshee-data/plate.report/internal/timeutil"
)

// JPEG stream markers. A frame starts at SOI and ends at EOI; camera
// encoders split one frame across consecutive datagrams.
var (
	jpegSOI = []byte{0xFF, 0xD8, 0xFF}
	jpegEOI = []byte{0xFF, 0xD9}
)

// pcapSource replays MJPEG-over-UDP camera traffic from a packet capture,
// reassembling JPEG frames from datagram payloads and pacing them by capture
// timestamps. Only available when building with the 'pcap' build tag.
type pcapSource struct {
	handle      *pcap.Handle
	packets     <-chan gopacket.Packet
	pending     []byte
	seq         int64
	sourceID    string
	speed       float64
	lastCapture time.Time
	clock       timeutil.Clock
	packetCount int
}

// NewPcapSource opens a capture file and returns a Source that replays the
// camera stream on the given UDP port. speed scales replay pacing
// (1.0 = real-time, 2.0 = twice as fast); values <= 0 replay as fast as
// the consumer pulls.
func NewPcapSource(pcapFile string, udpPort int, speed float64, clock timeutil.Clock) (Source, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP replay: BPF filter set: %s (speed: %.1fx)", filterStr, speed)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	return &pcapSource{
		handle:   handle,
		packets:  packetSource.Packets(),
		sourceID: "pcap:" + pcapFile,
		speed:    speed,
		clock:    clock,
	}, nil
}

// Next reassembles datagram payloads until a complete JPEG frame is seen.
func (s *pcapSource) Next(ctx context.Context) (*Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case packet := <-s.packets:
			if packet == nil {
				// End of capture file.
				monitoring.Logf("PCAP replay complete: %d packets, %d frames", s.packetCount, s.seq)
				return nil, ErrExhausted
			}
			s.packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue // BPF filter should prevent this
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}
			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			data := s.consume(payload)
			if data == nil {
				continue
			}

			captureTime := packet.Metadata().Timestamp
			s.pace(captureTime)

			cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				monitoring.Logf("PCAP replay: dropping undecodable frame after packet %d: %v", s.packetCount, err)
				continue
			}

			s.seq++
			return &Frame{
				Seq:       s.seq,
				Timestamp: captureTime,
				Data:      data,
				Width:     cfg.Width,
				Height:    cfg.Height,
				SourceID:  s.sourceID,
			}, nil
		}
	}
}

// consume appends a datagram payload to the frame being assembled and
// returns the completed JPEG when the EOI marker arrives. A new SOI marker
// abandons any incomplete frame.
func (s *pcapSource) consume(payload []byte) []byte {
	if i := bytes.Index(payload, jpegSOI); i >= 0 {
		s.pending = append(s.pending[:0], payload[i:]...)
	} else if len(s.pending) > 0 {
		s.pending = append(s.pending, payload...)
	} else {
		return nil // datagram before the first frame start
	}

	if len(s.pending) > len(jpegEOI) && bytes.HasSuffix(s.pending, jpegEOI) {
		frame := make([]byte, len(s.pending))
		copy(frame, s.pending)
		s.pending = s.pending[:0]
		return frame
	}
	return nil
}

// pace sleeps to reproduce the capture-time spacing between frames, scaled
// by the speed multiplier.
func (s *pcapSource) pace(captureTime time.Time) {
	if s.speed <= 0 {
		return
	}
	if !s.lastCapture.IsZero() {
		delay := captureTime.Sub(s.lastCapture)
		if delay > 0 {
			s.clock.Sleep(time.Duration(float64(delay) / s.speed))
		}
	}
	s.lastCapture = captureTime
}

// Close releases the capture handle.
func (s *pcapSource) Close() error {
	s.handle.Close()
	return nil
}
