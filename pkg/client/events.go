package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is done or the daemon
// closes the stream. The returned channel is closed when streaming stops.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 16)

	go func() {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
		if err != nil {
			logrus.WithError(err).Error("failed to create event request")
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				logrus.WithError(err).Error("failed to subscribe to events")
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logrus.WithField("statusCode", resp.StatusCode).Error("unexpected event stream status")
			return
		}

		readEvents(ctx, bufio.NewScanner(resp.Body), out)
	}()

	return out
}

// readEvents parses "event:" and "data:" fields; a blank line ends an event.
func readEvents(ctx context.Context, sc *bufio.Scanner, out chan<- events.Event) {
	var (
		name string
		data []string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name != "" || len(data) > 0 {
				ev := events.Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
