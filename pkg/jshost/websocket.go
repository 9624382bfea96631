package jshost

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/dom"
)

// WebSocket readyState values.
const (
	wsConnecting = 0
	wsOpen       = 1
	wsClosing    = 2
	wsClosed     = 3
)

// socket is one script-side WebSocket. obj and listeners belong to the loop
// goroutine; conn and closed are guarded by mu.
type socket struct {
	host      *Host
	url       string
	obj       *goja.Object
	listeners *dom.Listeners

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newWebSocketConstructor(h *Host, vm *goja.Runtime, dialer *websocket.Dialer) (goja.Value, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	same := func(a, b dom.Listener) bool {
		av, aok := a.(goja.Value)
		bv, bok := b.(goja.Value)
		return aok && bok && av.SameAs(bv)
	}

	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		rawURL := call.Argument(0).String()
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			panic(vm.NewTypeError("SyntaxError: invalid WebSocket URL " + rawURL))
		}

		obj := call.This
		s := &socket{host: h, url: rawURL, obj: obj, listeners: dom.NewListeners()}
		if !h.track(s) {
			panic(vm.NewGoError(ErrStopped))
		}

		for k, v := range map[string]interface{}{
			"url":            rawURL,
			"readyState":     wsConnecting,
			"binaryType":     "blob",
			"protocol":       "",
			"extensions":     "",
			"bufferedAmount": 0,
			"onopen":         goja.Null(),
			"onmessage":      goja.Null(),
			"onerror":        goja.Null(),
			"onclose":        goja.Null(),
			"CONNECTING":     wsConnecting,
			"OPEN":           wsOpen,
			"CLOSING":        wsClosing,
			"CLOSED":         wsClosed,
		} {
			_ = obj.Set(k, v)
		}
		_ = obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
			s.listeners.Add(call.Argument(0).String(), call.Argument(1), same)
			return goja.Undefined()
		})
		_ = obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
			s.listeners.Remove(call.Argument(0).String(), call.Argument(1), same)
			return goja.Undefined()
		})
		_ = obj.Set("send", func(call goja.FunctionCall) goja.Value {
			if state := obj.Get("readyState").ToInteger(); state != wsOpen {
				panic(vm.NewTypeError("InvalidStateError: WebSocket is not open"))
			}
			mt, payload := messageFrom(call.Argument(0))
			if err := s.write(mt, payload); err != nil {
				logrus.WithError(err).WithField("url", s.url).Warn("websocket send failed")
			}
			return goja.Undefined()
		})
		_ = obj.Set("close", func(call goja.FunctionCall) goja.Value {
			code := websocket.CloseNormalClosure
			if c := call.Argument(0); !goja.IsUndefined(c) {
				code = int(c.ToInteger())
			}
			reason := ""
			if r := call.Argument(1); !goja.IsUndefined(r) {
				reason = r.String()
			}
			if state := obj.Get("readyState").ToInteger(); state == wsClosing || state == wsClosed {
				return goja.Undefined()
			}
			_ = obj.Set("readyState", wsClosing)
			s.close(code, reason)
			return goja.Undefined()
		})

		go s.connect(dialer)

		return nil
	})

	ctorObj := ctor.ToObject(vm)
	for k, v := range map[string]int{
		"CONNECTING": wsConnecting,
		"OPEN":       wsOpen,
		"CLOSING":    wsClosing,
		"CLOSED":     wsClosed,
	} {
		_ = ctorObj.Set(k, v)
	}

	return ctor, nil
}

func messageFrom(v goja.Value) (int, []byte) {
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return websocket.BinaryMessage, x.Bytes()
	case []byte:
		return websocket.BinaryMessage, x
	case string:
		return websocket.TextMessage, []byte(x)
	default:
		return websocket.TextMessage, []byte(v.String())
	}
}

func (s *socket) connect(dialer *websocket.Dialer) {
	log := logrus.WithField("url", s.url)
	log.Debug("websocket connecting")

	conn, _, err := dialer.DialContext(s.host.ctx, s.url, nil)
	if err != nil {
		log.WithError(err).Debug("websocket connect failed")
		s.host.untrack(s)
		s.host.loop.RunOnLoop(func(vm *goja.Runtime) {
			_ = s.obj.Set("readyState", wsClosed)
			s.fire(vm, "error", nil)
			s.fire(vm, "close", map[string]interface{}{
				"code":     websocket.CloseAbnormalClosure,
				"reason":   err.Error(),
				"wasClean": false,
			})
		})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		s.host.untrack(s)
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.host.loop.RunOnLoop(func(vm *goja.Runtime) {
		_ = s.obj.Set("readyState", wsOpen)
		s.fire(vm, "open", nil)
	})

	s.readLoop(conn)
}

func (s *socket) readLoop(conn *websocket.Conn) {
	defer s.host.untrack(s)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			code, reason, clean := websocket.CloseAbnormalClosure, "", false
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason, clean = ce.Code, ce.Text, true
			}
			_ = conn.Close()
			s.host.loop.RunOnLoop(func(vm *goja.Runtime) {
				_ = s.obj.Set("readyState", wsClosed)
				s.fire(vm, "close", map[string]interface{}{
					"code":     code,
					"reason":   reason,
					"wasClean": clean,
				})
			})
			return
		}

		s.host.loop.RunOnLoop(func(vm *goja.Runtime) {
			var payload goja.Value
			if mt == websocket.BinaryMessage {
				payload = vm.ToValue(vm.NewArrayBuffer(data))
			} else {
				payload = vm.ToValue(string(data))
			}
			s.fire(vm, "message", map[string]interface{}{"data": payload})
		})
	}
}

func (s *socket) write(mt int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return ErrStopped
	}
	return s.conn.WriteMessage(mt, payload)
}

// close starts the closing handshake. The close event fires once the read
// loop observes the peer's reply, or immediately if never connected.
func (s *socket) close(code int, reason string) {
	s.mu.Lock()
	conn := s.conn
	s.closed = true
	s.mu.Unlock()

	if conn == nil {
		s.host.loop.RunOnLoop(func(vm *goja.Runtime) {
			_ = s.obj.Set("readyState", wsClosed)
			s.fire(vm, "close", map[string]interface{}{"code": code, "reason": reason, "wasClean": true})
		})
		return
	}

	msg := websocket.FormatCloseMessage(code, reason)
	s.mu.Lock()
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.mu.Unlock()
	if err != nil {
		_ = conn.Close()
	}
}

// shutdown drops the connection without a handshake.
func (s *socket) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *socket) fire(vm *goja.Runtime, typ string, init map[string]interface{}) {
	ev := vm.NewObject()
	_ = ev.Set("type", typ)
	_ = ev.Set("target", s.obj)
	for k, v := range init {
		_ = ev.Set(k, v)
	}

	if handler, ok := goja.AssertFunction(s.obj.Get("on" + typ)); ok {
		if _, err := handler(s.obj, ev); err != nil {
			logrus.WithError(AsRejection(err)).WithField("event", typ).Warn("websocket handler threw")
		}
	}
	for _, l := range s.listeners.For(typ) {
		callListener(vm, s.obj, l, ev)
	}
}
