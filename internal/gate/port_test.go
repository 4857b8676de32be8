package gate

import (
	"testing"

	"go.bug.st/serial"
)

// TestPortOptions_Normalize tests defaulting and validation of serial options
func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "zero value gets defaults",
			in:   PortOptions{},
			want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit values preserved",
			in:   PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
			want: PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "parity word forms accepted",
			in:   PortOptions{Parity: "even"},
			want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{
			name: "odd parity",
			in:   PortOptions{Parity: "ODD"},
			want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "O"},
		},
		{
			name: "negative baud defaults",
			in:   PortOptions{BaudRate: -1},
			want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name:    "data bits out of range",
			in:      PortOptions{DataBits: 9},
			wantErr: true,
		},
		{
			name:    "data bits too small",
			in:      PortOptions{DataBits: 4},
			wantErr: true,
		},
		{
			name:    "invalid stop bits",
			in:      PortOptions{StopBits: 3},
			wantErr: true,
		},
		{
			name:    "unsupported parity",
			in:      PortOptions{Parity: "MARK"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%+v) expected error, got %+v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%+v) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

// TestPortOptions_SerialMode tests conversion into the serial library's mode
func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 19200, Parity: "odd"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}

	if mode.BaudRate != 19200 {
		t.Errorf("Expected baud rate 19200, got %d", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("Expected 8 data bits, got %d", mode.DataBits)
	}
	if mode.StopBits != serial.OneStopBit {
		t.Errorf("Expected one stop bit, got %v", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Expected odd parity, got %v", mode.Parity)
	}
}

// TestPortOptions_SerialMode_Invalid tests that invalid options are rejected
// before any port open is attempted
func TestPortOptions_SerialMode_Invalid(t *testing.T) {
	if _, err := (PortOptions{Parity: "MARK"}).SerialMode(); err == nil {
		t.Error("Expected error for unsupported parity")
	}
}
