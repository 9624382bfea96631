// Package bridge reads calibration straight from the HoloPlay Service over
// its websocket driver endpoint, without loading any JavaScript.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultURL is where the HoloPlay Service listens.
const DefaultURL = "ws://localhost:11222/driver"

// ErrNoDevices is returned when the service reports no connected display.
var ErrNoDevices = errors.New("no Looking Glass devices connected")

// ServiceError is a non-zero error code reported by the service.
type ServiceError struct {
	Code int
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("holoplay service returned error %d", e.Code)
}

// Device is one entry of the info reply.
type Device struct {
	Calibration     interface{} `cbor:"calibration"`
	DefaultQuilt    interface{} `cbor:"defaultQuilt"`
	HardwareVersion string      `cbor:"hardwareVersion"`
	HWID            string      `cbor:"hwid"`
	Index           int         `cbor:"index"`
	State           string      `cbor:"state"`
	WindowCoords    []int       `cbor:"windowCoords"`
}

// InfoResponse is the service's reply to an info command.
type InfoResponse struct {
	Version string   `cbor:"version"`
	Error   int      `cbor:"error"`
	Devices []Device `cbor:"devices"`
}

type infoRequest struct {
	Cmd struct {
		Info struct{} `cbor:"info"`
	} `cbor:"cmd"`
	Bin string `cbor:"bin"`
}

// Client talks to one service endpoint.
type Client struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewClient returns a client for url, or DefaultURL when url is empty.
func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{URL: url, Dialer: websocket.DefaultDialer}
}

// Info sends the info command and decodes the reply.
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	log := logrus.WithField("url", c.URL)

	conn, _, err := c.Dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to holoplay service at %s", c.URL)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	req, err := cbor.Marshal(infoRequest{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to encode info request")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to send info request")
	}
	log.Debug("sent info request")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, pkgerrors.Wrap(err, "failed to read info reply")
		}
		if mt != websocket.BinaryMessage {
			log.WithField("message", string(data)).Debug("ignoring text message")
			continue
		}

		var resp InfoResponse
		if err := cbor.Unmarshal(data, &resp); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to decode info reply")
		}
		log.WithFields(logrus.Fields{
			"version": resp.Version,
			"error":   resp.Error,
			"devices": len(resp.Devices),
		}).Debug("received info reply")

		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return &resp, nil
	}
}

// GetCalibration returns the first device's calibration as JSON.
func (c *Client) GetCalibration(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != 0 {
		return nil, &ServiceError{Code: resp.Error}
	}
	if len(resp.Devices) == 0 {
		return nil, ErrNoDevices
	}

	return calibrationJSON(resp.Devices[0].Calibration)
}

// calibrationJSON accepts either a decoded map or a JSON string, since older
// service versions send the calibration file contents verbatim.
func calibrationJSON(v interface{}) (json.RawMessage, error) {
	switch x := v.(type) {
	case nil:
		return nil, pkgerrors.New("device has no calibration")
	case string:
		if !json.Valid([]byte(x)) {
			return nil, pkgerrors.New("device calibration is not valid JSON")
		}
		return json.RawMessage(x), nil
	case []byte:
		if !json.Valid(x) {
			return nil, pkgerrors.New("device calibration is not valid JSON")
		}
		return json.RawMessage(x), nil
	default:
		b, err := json.Marshal(normalize(x))
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to encode device calibration")
		}
		return b, nil
	}
}

// normalize converts CBOR's map[interface{}]interface{} into something
// encoding/json accepts.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	case []interface{}:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	default:
		return x
	}
}
