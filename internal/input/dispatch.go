// Package input deserializes touch/scroll/key/media-key event packets and
// forwards them to the platform's input injector (spec §4.6, §6).
package input

import (
	"encoding/json"
	"fmt"

	"github.com/aircatch/host/internal/platform"
)

// TouchEvent is the JSON payload of a touch_event packet (spec §6).
type TouchEvent struct {
	NormX       float64 `json:"normX"`
	NormY       float64 `json:"normY"`
	Kind        string  `json:"kind"`
	ScreenFrame uint64  `json:"screenFrame"`
}

// ScrollEvent is the JSON payload of a scroll_event packet (spec §6).
type ScrollEvent struct {
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	PointX float64 `json:"pointX"`
	PointY float64 `json:"pointY"`
}

// KeyEvent is the JSON payload of a key_event packet (spec §6).
type KeyEvent struct {
	Code      int      `json:"code"`
	Modifiers []string `json:"modifiers"`
	Down      bool     `json:"down"`
}

// MediaKeyEvent is the JSON payload of a media_key_event packet (spec §6).
type MediaKeyEvent struct {
	ID string `json:"id"`
}

// Dispatcher parses event packet payloads and applies them via a
// platform.InputInjector. It holds no session state; the router is
// responsible for only forwarding packets from the currently-bound client
// (spec §4.6, testable property 8).
type Dispatcher struct {
	injector platform.InputInjector
}

// NewDispatcher builds a Dispatcher over the given injector.
func NewDispatcher(injector platform.InputInjector) *Dispatcher {
	return &Dispatcher{injector: injector}
}

func (d *Dispatcher) HandleTouch(payload []byte) error {
	var e TouchEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("input: decode touch_event: %w", err)
	}
	return d.injector.InjectPointer(e.NormX, e.NormY, e.Kind, e.ScreenFrame)
}

func (d *Dispatcher) HandleScroll(payload []byte) error {
	var e ScrollEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("input: decode scroll_event: %w", err)
	}
	return d.injector.InjectScroll(e.DX, e.DY, [2]float64{e.PointX, e.PointY})
}

func (d *Dispatcher) HandleKey(payload []byte) error {
	var e KeyEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("input: decode key_event: %w", err)
	}
	return d.injector.InjectKey(e.Code, e.Modifiers, e.Down)
}

func (d *Dispatcher) HandleMediaKey(payload []byte) error {
	var e MediaKeyEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("input: decode media_key_event: %w", err)
	}
	return d.injector.InjectMediaKey(e.ID)
}
