//go:build !cgo

package usbcal

import "context"

func Open(context.Context) (Device, error) {
	return nil, ErrUnsupported
}

func ListDevices() ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}
