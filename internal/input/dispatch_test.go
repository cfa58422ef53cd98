package input

import "testing"

type stubInjector struct {
	pointerCalls []TouchEvent
	scrollCalls  []ScrollEvent
	keyCalls     []KeyEvent
	mediaCalls   []string
}

func (s *stubInjector) InjectPointer(normX, normY float64, kind string, screenFrame uint64) error {
	s.pointerCalls = append(s.pointerCalls, TouchEvent{NormX: normX, NormY: normY, Kind: kind, ScreenFrame: screenFrame})
	return nil
}

func (s *stubInjector) InjectScroll(dx, dy float64, point [2]float64) error {
	s.scrollCalls = append(s.scrollCalls, ScrollEvent{DX: dx, DY: dy, PointX: point[0], PointY: point[1]})
	return nil
}

func (s *stubInjector) InjectKey(code int, modifiers []string, down bool) error {
	s.keyCalls = append(s.keyCalls, KeyEvent{Code: code, Modifiers: modifiers, Down: down})
	return nil
}

func (s *stubInjector) InjectText(string) error { return nil }

func (s *stubInjector) InjectMediaKey(id string) error {
	s.mediaCalls = append(s.mediaCalls, id)
	return nil
}

func TestHandleTouchForwardsToInjector(t *testing.T) {
	inj := &stubInjector{}
	d := NewDispatcher(inj)

	err := d.HandleTouch([]byte(`{"normX":0.5,"normY":0.25,"kind":"began","screenFrame":7}`))
	if err != nil {
		t.Fatalf("HandleTouch: %v", err)
	}
	if len(inj.pointerCalls) != 1 || inj.pointerCalls[0].Kind != "began" || inj.pointerCalls[0].ScreenFrame != 7 {
		t.Fatalf("unexpected injector call: %+v", inj.pointerCalls)
	}
}

func TestHandleScrollForwardsToInjector(t *testing.T) {
	inj := &stubInjector{}
	d := NewDispatcher(inj)

	err := d.HandleScroll([]byte(`{"dx":1.5,"dy":-2,"pointX":10,"pointY":20}`))
	if err != nil {
		t.Fatalf("HandleScroll: %v", err)
	}
	if len(inj.scrollCalls) != 1 || inj.scrollCalls[0].DX != 1.5 || inj.scrollCalls[0].PointY != 20 {
		t.Fatalf("unexpected injector call: %+v", inj.scrollCalls)
	}
}

func TestHandleKeyForwardsToInjector(t *testing.T) {
	inj := &stubInjector{}
	d := NewDispatcher(inj)

	err := d.HandleKey([]byte(`{"code":13,"modifiers":["shift"],"down":true}`))
	if err != nil {
		t.Fatalf("HandleKey: %v", err)
	}
	if len(inj.keyCalls) != 1 || inj.keyCalls[0].Code != 13 || !inj.keyCalls[0].Down {
		t.Fatalf("unexpected injector call: %+v", inj.keyCalls)
	}
}

func TestHandleMediaKeyForwardsToInjector(t *testing.T) {
	inj := &stubInjector{}
	d := NewDispatcher(inj)

	if err := d.HandleMediaKey([]byte(`{"id":"playpause"}`)); err != nil {
		t.Fatalf("HandleMediaKey: %v", err)
	}
	if len(inj.mediaCalls) != 1 || inj.mediaCalls[0] != "playpause" {
		t.Fatalf("unexpected injector call: %v", inj.mediaCalls)
	}
}

func TestHandleTouchRejectsMalformedJSON(t *testing.T) {
	d := NewDispatcher(&stubInjector{})
	if err := d.HandleTouch([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}
