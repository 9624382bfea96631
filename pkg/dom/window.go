package dom

// Location is the parsed page URL reported to scripts.
type Location struct {
	Href     string
	Protocol string
	Host     string
	Hostname string
	Pathname string
	Origin   string
}

// Window carries the host-level values browser libraries read.
type Window struct {
	Document         *Document
	InnerWidth       int
	InnerHeight      int
	DevicePixelRatio float64
	UserAgent        string
	Location         Location

	listeners *Listeners
}

// NewWindow returns a window for doc with a desktop-sized viewport on a
// local page.
func NewWindow(doc *Document) *Window {
	return &Window{
		Document:         doc,
		InnerWidth:       1920,
		InnerHeight:      1080,
		DevicePixelRatio: 1,
		UserAgent:        "Mozilla/5.0 (lkgcal)",
		Location: Location{
			Href:     "http://localhost/",
			Protocol: "http:",
			Host:     "localhost",
			Hostname: "localhost",
			Pathname: "/",
			Origin:   "http://localhost",
		},
		listeners: NewListeners(),
	}
}

func (w *Window) Listeners() *Listeners { return w.listeners }
