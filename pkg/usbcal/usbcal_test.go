package usbcal

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

const sample = `{"configVersion":"1.0","serial":"LKG-A0001","pitch":{"value":47.56},"center":{"value":0.13}}`

// packetize frames payload the way the firmware does: four header bytes
// carrying the packet index, then up to 64 payload bytes, zero padded.
func packetize(payload string) [][]byte {
	var packets [][]byte
	for i := 0; i < packetCount; i++ {
		p := make([]byte, bufferSize)
		p[2] = byte(i)
		lo := i * 64
		if lo < len(payload) {
			hi := min(lo+64, len(payload))
			copy(p[4:], payload[lo:hi])
		}
		packets = append(packets, p)
	}
	return packets
}

type fakeDevice struct {
	packets  [][]byte
	requests []uint16
	reports  []byte
	readErr  error
	closed   bool
}

func (f *fakeDevice) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	switch {
	case rType == 0x80 && request == 6:
		f.requests = append(f.requests, val)
	case rType == 0x21 && request == 9:
		if len(data) != reportSize {
			return 0, errors.New("bad report size")
		}
		f.reports = append(f.reports, data[2])
	}
	return len(data), nil
}

func (f *fakeDevice) ReadPacket(buf []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	i := len(f.reports) - 1
	return copy(buf, f.packets[i]), nil
}

func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
		err  bool
	}{
		{
			name: "control bytes inside payload",
			data: []byte("\x01\x02{\"a\":\x00\x03{\"b\":1}}\x00trailing"),
			want: `{"a":{"b":1}}`,
		},
		{
			name: "no object",
			data: []byte("\x00\x00\x00"),
			err:  true,
		},
		{
			name: "unterminated",
			data: []byte(`{"a":{"b":1}`),
			err:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.data)
			if tt.err {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("ExtractJSON() error = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReadCalibration(t *testing.T) {
	dev := &fakeDevice{packets: packetize(sample)}

	got, err := ReadCalibration(context.Background(), dev)
	if err != nil {
		t.Fatalf("ReadCalibration() error = %v", err)
	}
	if string(got) != sample {
		t.Errorf("ReadCalibration() = %s, want %s", got, sample)
	}
	if want := []uint16{0x0303, 0x0301, 0x0302}; !reflect.DeepEqual(dev.requests, want) {
		t.Errorf("descriptor requests = %#v, want %#v", dev.requests, want)
	}
	if want := []byte{0, 1, 2, 3, 4, 5, 6}; !reflect.DeepEqual(dev.reports, want) {
		t.Errorf("packet requests = %v, want %v", dev.reports, want)
	}
}

func TestReadCalibrationReadError(t *testing.T) {
	dev := &fakeDevice{packets: packetize(sample), readErr: errors.New("pipe")}

	if _, err := ReadCalibration(context.Background(), dev); err == nil {
		t.Fatal("ReadCalibration() error = nil")
	}
}

func TestReaderClosesDevice(t *testing.T) {
	dev := &fakeDevice{packets: packetize(sample)}
	r := &Reader{open: func(context.Context) (Device, error) { return dev, nil }}

	raw, err := r.GetCalibration(context.Background())
	if err != nil {
		t.Fatalf("GetCalibration() error = %v", err)
	}
	if !json.Valid(raw) {
		t.Errorf("GetCalibration() = %s, not JSON", raw)
	}
	if !dev.closed {
		t.Error("device was not closed")
	}
}

func TestReaderOpenError(t *testing.T) {
	r := &Reader{open: func(context.Context) (Device, error) { return nil, ErrNoDevice }}

	if _, err := r.GetCalibration(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("GetCalibration() error = %v, want ErrNoDevice", err)
	}
}
