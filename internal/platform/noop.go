package platform

// NoopEncoder is an EncoderAdapter that never produces frames. It lets
// cmd/aircatch-host start the full engine wiring without a real platform
// capture/encode backend linked in (spec §1, §6: deliberately out of
// scope).
type NoopEncoder struct {
	width, height int
}

func (e *NoopEncoder) Start(profile EncodeProfile) error {
	e.width, e.height = profile.Width, profile.Height
	return nil
}
func (e *NoopEncoder) Stop()                         {}
func (e *NoopEncoder) SetBitrate(int) error          { return nil }
func (e *NoopEncoder) SetFrameRate(int) error        { return nil }
func (e *NoopEncoder) CaptureDimensions() (int, int) { return e.width, e.height }
func (e *NoopEncoder) SetFrameHandler(func([]byte))  {}
func (e *NoopEncoder) SetAudioHandler(func([]byte))  {}
func (e *NoopEncoder) Counters() (uint64, uint64)    { return 0, 0 }

// NoopInjector is an InputInjector that drops every event.
type NoopInjector struct{}

func (NoopInjector) InjectPointer(float64, float64, string, uint64) error { return nil }
func (NoopInjector) InjectScroll(float64, float64, [2]float64) error      { return nil }
func (NoopInjector) InjectKey(int, []string, bool) error                 { return nil }
func (NoopInjector) InjectText(string) error                             { return nil }
func (NoopInjector) InjectMediaKey(string) error                         { return nil }

// NoopDisplay is a DisplayAdapter reporting a fixed virtual surface.
type NoopDisplay struct {
	Width, Height int
}

func (d NoopDisplay) MainDisplayFrame() (int, int, error) { return d.Width, d.Height, nil }
func (NoopDisplay) CreateVirtualDisplay(int, int) error   { return nil }
func (NoopDisplay) DestroyVirtualDisplay() error          { return nil }

// NoopCloseRangeFramework is a CloseRangeFramework that never reports peers
// or invitations. Start/Stop succeed trivially.
type NoopCloseRangeFramework struct {
	handler func(peer string, kind byte, payload []byte)
}

func (f *NoopCloseRangeFramework) Start() error { return nil }
func (f *NoopCloseRangeFramework) Stop()        {}
func (f *NoopCloseRangeFramework) Send(string, byte, []byte, SendMode) error {
	return nil
}
func (f *NoopCloseRangeFramework) Broadcast(byte, []byte, SendMode) error { return nil }
func (f *NoopCloseRangeFramework) SetPacketHandler(h func(peer string, kind byte, payload []byte)) {
	f.handler = h
}
