// Package usbcal reads the calibration blob stored in a Looking Glass
// display's firmware over USB HID.
package usbcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// VendorID is the USB vendor of Looking Glass displays.
	VendorID = 0x04d8

	minInterface = 0
	maxInterface = 3
	inEndpoint   = 4

	reportSize  = 67
	packetSize  = reportSize + 1
	bufferSize  = 255
	packetCount = 7
)

var (
	// ErrNoDevice is returned when no display is attached.
	ErrNoDevice = errors.New("no Looking Glass display found")
	// ErrUnsupported is returned by builds without USB support.
	ErrUnsupported = errors.New("usb support requires cgo")
	// ErrNoJSON is returned when the packets hold no calibration object.
	ErrNoJSON = errors.New("no calibration JSON in device data")
)

// Device is an opened display with a claimed interface.
type Device interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	ReadPacket(buf []byte) (int, error)
	Close() error
}

// DeviceInfo describes an attached display.
type DeviceInfo struct {
	Bus     int `json:"bus"`
	Address int `json:"address"`
	Vendor  int `json:"vendor"`
	Product int `json:"product"`
}

// ReadCalibration runs the string-descriptor handshake, then requests each
// packet with SET_REPORT and collects it from the interrupt endpoint.
func ReadCalibration(ctx context.Context, dev Device) (json.RawMessage, error) {
	buf := make([]byte, bufferSize)
	for _, val := range []uint16{0x0303, 0x0301, 0x0302} {
		if _, err := dev.Control(0x80, 6, val, 0x0409, buf); err != nil {
			logrus.WithError(err).WithField("value", val).Debug("string descriptor request failed")
		}
	}

	var info []byte
	for i := 0; i < packetCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report := make([]byte, reportSize)
		report[2] = byte(i)
		if _, err := dev.Control(0x21, 9, 0x300, 0x02, report); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to request packet %d", i)
		}

		packet := make([]byte, bufferSize)
		if _, err := dev.ReadPacket(packet); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to read packet %d", i)
		}
		info = append(info, packet[:packetSize]...)
	}

	return ExtractJSON(info)
}

// ExtractJSON takes the text between the first '{' and the first "}}",
// drops the framing bytes 0x00 through 0x06 and validates the result.
func ExtractJSON(data []byte) (json.RawMessage, error) {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	end := bytes.Index(data, []byte("}}"))
	if end < start {
		return nil, ErrNoJSON
	}

	out := make([]byte, 0, end+2-start)
	for _, b := range data[start : end+2] {
		if b <= 0x06 {
			continue
		}
		out = append(out, b)
	}
	if !json.Valid(out) {
		return nil, pkgerrors.Wrapf(ErrNoJSON, "extracted data is not valid JSON: %q", out)
	}
	return out, nil
}

// Reader opens the first display on every call.
type Reader struct {
	open func(ctx context.Context) (Device, error)
}

// NewReader returns a Reader backed by the system's USB stack.
func NewReader() *Reader {
	return &Reader{open: Open}
}

func (r *Reader) GetCalibration(ctx context.Context) (json.RawMessage, error) {
	dev, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	return ReadCalibration(ctx, dev)
}
