//go:build cgo

package usbcal

import (
	"context"

	"github.com/google/gousb"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type usbDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
}

// Open finds the first display and claims the first interface in 0..3 that
// can be claimed.
func Open(ctx context.Context) (Device, error) {
	uctx := gousb.NewContext()

	devs, err := uctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID)
	})
	if len(devs) == 0 {
		_ = uctx.Close()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to list usb devices")
		}
		return nil, ErrNoDevice
	}
	for _, d := range devs[1:] {
		_ = d.Close()
	}

	d := &usbDevice{ctx: uctx, dev: devs[0]}
	if err := d.claim(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *usbDevice) claim() error {
	if err := d.dev.SetAutoDetach(true); err != nil {
		logrus.WithError(err).Debug("failed to enable kernel driver auto-detach")
	}

	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to read active configuration")
	}
	d.cfg, err = d.dev.Config(num)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to select configuration %d", num)
	}

	for i := minInterface; i <= maxInterface; i++ {
		log := logrus.WithField("interface", i)
		intf, err := d.cfg.Interface(i, 0)
		if err != nil {
			log.WithError(err).Debug("failed to claim interface")
			continue
		}
		in, err := intf.InEndpoint(inEndpoint)
		if err != nil {
			log.WithError(err).Debug("interface has no calibration endpoint")
			intf.Close()
			continue
		}
		log.Debug("claimed interface")
		d.intf, d.in = intf, in
		return nil
	}
	return pkgerrors.New("cannot claim any interface")
}

func (d *usbDevice) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return d.dev.Control(rType, request, val, idx, data)
}

func (d *usbDevice) ReadPacket(buf []byte) (int, error) {
	return d.in.Read(buf)
}

func (d *usbDevice) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		_ = d.cfg.Close()
	}
	if d.dev != nil {
		_ = d.dev.Close()
	}
	return d.ctx.Close()
}

// ListDevices reports every attached display.
func ListDevices() ([]DeviceInfo, error) {
	uctx := gousb.NewContext()
	defer uctx.Close()

	var infos []DeviceInfo
	devs, err := uctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == gousb.ID(VendorID) {
			infos = append(infos, DeviceInfo{
				Bus:     desc.Bus,
				Address: desc.Address,
				Vendor:  int(desc.Vendor),
				Product: int(desc.Product),
			})
		}
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil {
		return infos, pkgerrors.Wrap(err, "failed to list usb devices")
	}
	return infos, nil
}
