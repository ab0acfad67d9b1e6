package limits

import (
	"errors"
	"testing"

	"github.com/opd-ai/streamaudio/apperr"
)

func TestMaxFramePayloadCalculation(t *testing.T) {
	if MaxFramePayload != MaxDatagram-SequenceHeaderSize {
		t.Errorf("MaxFramePayload = %d, want %d", MaxFramePayload, MaxDatagram-SequenceHeaderSize)
	}
}

func TestValidateDatagram(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, ErrDatagramTooShort},
		{"three bytes", 3, ErrDatagramTooShort},
		{"counter only", 4, nil},
		{"typical frame", 420, nil},
		{"buffer sized", MaxDatagram, nil},
		{"oversized", MaxDatagram + 1, ErrDatagramTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatagram(make([]byte, tt.size))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateDatagram(%d bytes) = %v, want nil", tt.size, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateDatagram(%d bytes) = %v, want %v", tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestSizeErrorsAreInvalidArgument(t *testing.T) {
	for _, size := range []int{1, MaxDatagram + 1} {
		if err := ValidateDatagram(make([]byte, size)); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("ValidateDatagram(%d bytes) = %v, want invalid argument", size, err)
		}
	}
}
