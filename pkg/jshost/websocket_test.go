package jshost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/websocket"
)

func newEchoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketTextRoundTrip(t *testing.T) {
	url := newEchoServer(t)
	h, _ := newInstalledHost(t, NewRecorder(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.AwaitJSON(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`new Promise(function (resolve, reject) {
			var ws = new WebSocket(` + "`" + url + "`" + `);
			var states = [ws.readyState];
			ws.onopen = function () { states.push(ws.readyState); ws.send("ping"); };
			ws.onerror = function () { reject(new Error("socket error")); };
			ws.addEventListener("message", function (ev) {
				ws.close();
				resolve({data: ev.data, states: states, open: WebSocket.OPEN});
			});
		})`)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"data":"echo:ping","states":[0,1],"open":1}` {
		t.Errorf("script saw %s", out)
	}
}

func TestWebSocketBinaryMessage(t *testing.T) {
	url := newEchoServer(t)
	h, _ := newInstalledHost(t, NewRecorder(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.AwaitJSON(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`new Promise(function (resolve) {
			var ws = new WebSocket(` + "`" + url + "`" + `);
			ws.binaryType = "arraybuffer";
			ws.onopen = function () { ws.send(new Uint8Array([1, 2, 3]).buffer); };
			ws.onmessage = function (ev) {
				resolve({isBuffer: ev.data instanceof ArrayBuffer, length: ev.data.byteLength});
			};
		})`)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"isBuffer":true,"length":8}` {
		t.Errorf("script saw %s", out)
	}
}

func TestWebSocketConnectFailure(t *testing.T) {
	h, _ := newInstalledHost(t, NewRecorder(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.AwaitJSON(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`new Promise(function (resolve) {
			var ws = new WebSocket("ws://127.0.0.1:1/driver");
			var events = [];
			ws.onerror = function () { events.push("error"); };
			ws.onclose = function (ev) { events.push("close"); resolve({events: events, code: ev.code, state: ws.readyState}); };
		})`)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"events":["error","close"],"code":1006,"state":3}` {
		t.Errorf("script saw %s", out)
	}
}

func TestWebSocketRejectsBadURL(t *testing.T) {
	h, _ := newInstalledHost(t, NewRecorder(nil))

	_, err := h.AwaitJSON(context.Background(), func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`new WebSocket("http://localhost/")`)
	})
	if err == nil {
		t.Fatal("expected an error for a non-websocket URL")
	}
}
