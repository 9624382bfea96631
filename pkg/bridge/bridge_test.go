package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// fakeService answers every info request with reply.
func fakeService(t *testing.T, reply interface{}) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			t.Errorf("request frame type = %d, want binary", mt)
			return
		}
		var req map[string]interface{}
		if err := cbor.Unmarshal(data, &req); err != nil {
			t.Errorf("request is not CBOR: %v", err)
			return
		}
		cmd, ok := req["cmd"].(map[interface{}]interface{})
		if !ok {
			t.Errorf("request has no cmd map: %v", req)
			return
		}
		if _, ok := cmd["info"]; !ok {
			t.Errorf("request is not an info command: %v", req)
		}
		if bin, ok := req["bin"]; !ok || bin != "" {
			t.Errorf("request bin = %v", bin)
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		out, err := cbor.Marshal(reply)
		if err != nil {
			t.Errorf("encode reply: %v", err)
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, out)
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/driver"
}

func TestGetCalibration(t *testing.T) {
	tests := []struct {
		name  string
		reply interface{}
		want  map[string]interface{}
		err   error
	}{
		{
			name: "calibration map",
			reply: map[string]interface{}{
				"version": "1.2.2",
				"error":   0,
				"devices": []interface{}{
					map[string]interface{}{
						"hwid":        "LKG-2K",
						"calibration": map[string]interface{}{"center": map[string]interface{}{"value": 0.5}},
					},
				},
			},
			want: map[string]interface{}{"center": map[string]interface{}{"value": 0.5}},
		},
		{
			name: "calibration string",
			reply: map[string]interface{}{
				"error":   0,
				"devices": []interface{}{map[string]interface{}{"calibration": `{"pitch":{"value":47}}`}},
			},
			want: map[string]interface{}{"pitch": map[string]interface{}{"value": 47.0}},
		},
		{
			name:  "no devices",
			reply: map[string]interface{}{"error": 0, "devices": []interface{}{}},
			err:   ErrNoDevices,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeService(t, tt.reply)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			raw, err := NewClient(wsURL(srv)).GetCalibration(ctx)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("GetCalibration() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetCalibration() error = %v", err)
			}
			var got map[string]interface{}
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("result %s is not JSON: %v", raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetCalibration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCalibrationServiceError(t *testing.T) {
	srv := fakeService(t, map[string]interface{}{"error": 3})

	_, err := NewClient(wsURL(srv)).GetCalibration(context.Background())
	var se *ServiceError
	if !errors.As(err, &se) || se.Code != 3 {
		t.Fatalf("GetCalibration() error = %v, want ServiceError{3}", err)
	}
}

func TestInfoHonorsContext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(wsURL(srv)).Info(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Info() error = %v, want deadline exceeded", err)
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	if got := NewClient("").URL; got != DefaultURL {
		t.Errorf("NewClient(\"\").URL = %q, want %q", got, DefaultURL)
	}
}
