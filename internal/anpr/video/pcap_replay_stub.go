//go:build !pcap
// +build !pcap

package video

import (
	"fmt"

	"github.com/banshee-data/plate.report/internal/timeutil"
)

// NewPcapSource is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable packet-capture replay.
func NewPcapSource(pcapFile string, udpPort int, speed float64, clock timeutil.Clock) (Source, error) {
	return nil, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable capture replay")
}
