package dom

// Listener is whatever the embedding engine registers as an event handler.
// It is stored as-is and handed back on dispatch.
type Listener any

// Listeners keeps handlers per event type, in registration order.
type Listeners struct {
	byType map[string][]Listener
}

func NewListeners() *Listeners {
	return &Listeners{byType: make(map[string][]Listener)}
}

// Add registers l for typ. Registering the same listener twice is a no-op,
// matching addEventListener.
func (l *Listeners) Add(typ string, fn Listener, same func(a, b Listener) bool) {
	for _, existing := range l.byType[typ] {
		if same(existing, fn) {
			return
		}
	}
	l.byType[typ] = append(l.byType[typ], fn)
}

func (l *Listeners) Remove(typ string, fn Listener, same func(a, b Listener) bool) {
	list := l.byType[typ]
	for i, existing := range list {
		if same(existing, fn) {
			l.byType[typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// For returns a snapshot of the listeners for typ.
func (l *Listeners) For(typ string) []Listener {
	return append([]Listener(nil), l.byType[typ]...)
}

func (l *Listeners) Count(typ string) int {
	return len(l.byType[typ])
}
