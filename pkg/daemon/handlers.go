package daemon

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/calibration"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/version"
)

var errNotAvailable = errors.New("calibration not available yet")

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getCalibration(c *gin.Context) {
	if force, _ := strconv.ParseBool(c.Query("refresh")); force {
		if _, err := refresh(c.Request.Context()); err != nil {
			logrus.Errorf("forced refresh failed: %v", err)
			c.IndentedJSON(http.StatusBadGateway, err.Error())
			_ = c.AbortWithError(http.StatusBadGateway, err)
			return
		}
	}

	raw, _ := cache.Get()
	if raw == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, errNotAvailable.Error())
		_ = c.AbortWithError(http.StatusServiceUnavailable, errNotAvailable)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func getShader(c *gin.Context) {
	raw, _ := cache.Get()
	if raw == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, errNotAvailable.Error())
		_ = c.AbortWithError(http.StatusServiceUnavailable, errNotAvailable)
		return
	}

	cal, err := calibration.Parse(raw)
	if err != nil {
		c.IndentedJSON(http.StatusUnprocessableEntity, err.Error())
		_ = c.AbortWithError(http.StatusUnprocessableEntity, err)
		return
	}

	c.IndentedJSON(http.StatusOK, cal.ForShader())
}

func getStatus(c *gin.Context) {
	st := cache.Status()
	if st.Source == "" {
		st.Source = string(conf.Source())
	}
	c.IndentedJSON(http.StatusOK, st)
}

func getAlerts(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, alerts.List())
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

// streamEvents relays hub events as server-sent events until the client
// goes away.
func streamEvents(c *gin.Context) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Send headers now so subscribers see the stream before the first event.
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}
