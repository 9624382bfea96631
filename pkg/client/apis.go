package client

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"github.com/lookingglasspt/lkgcal/pkg/calibration"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/types"
)

// GetCalibration returns the daemon's cached calibration. With refresh set
// the daemon fetches a new one first.
func (c *Client) GetCalibration(ctx context.Context, refresh bool) (json.RawMessage, error) {
	path := "/calibration"
	if refresh {
		path += "?refresh=true"
	}
	ret, err := c.Get(ctx, path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration")
	}
	if !json.Valid([]byte(ret)) {
		return nil, pkgerrors.New("daemon returned invalid calibration JSON")
	}
	return json.RawMessage(ret), nil
}

func (c *Client) GetShader(ctx context.Context) (*calibration.ForShader, error) {
	ret, err := c.Get(ctx, "/calibration/shader")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get shader values")
	}

	var fs calibration.ForShader
	if err := json.Unmarshal([]byte(ret), &fs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal shader values")
	}
	return &fs, nil
}

func (c *Client) GetStatus(ctx context.Context) (*types.Status, error) {
	ret, err := c.Get(ctx, "/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st types.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

func (c *Client) GetAlerts(ctx context.Context) ([]types.Alert, error) {
	ret, err := c.Get(ctx, "/alerts")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get alerts")
	}

	var alerts []types.Alert
	if err := json.Unmarshal([]byte(ret), &alerts); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal alerts")
	}
	return alerts, nil
}

func (c *Client) GetConfig(ctx context.Context) (*config.RawFileConfig, error) {
	ret, err := c.Get(ctx, "/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	ret, err := c.Get(ctx, "/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}
