//go:build !pcap
// +build !pcap

package video

import (
	"strings"
	"testing"
)

// TestNewPcapSource_Stub verifies the stub reports that pcap support is not
// compiled in.
func TestNewPcapSource_Stub(t *testing.T) {
	src, err := NewPcapSource("capture.pcap", 5600, 1.0, nil)
	if err == nil {
		t.Fatal("expected error from pcap stub")
	}
	if src != nil {
		t.Error("stub should return nil source")
	}
	if !strings.Contains(err.Error(), "pcap") {
		t.Errorf("error should mention pcap build tag: %v", err)
	}
}
