package event

// Handlers routes events by kind. Nil handlers are skipped.
type Handlers struct {
	OnMessage  func(Message)
	OnToolCall func(ToolCall)
	OnAudio    func(AudioOutput)
	OnOther    func(Other)
}

// Handle routes ev to exactly one handler and returns its kind.
// It never fails: unknown or nil events go to OnOther.
func (h Handlers) Handle(ev Event) Kind {
	switch e := ev.(type) {
	case Message:
		if h.OnMessage != nil {
			h.OnMessage(e)
		}
		return e.Kind()
	case ToolCall:
		if h.OnToolCall != nil {
			h.OnToolCall(e)
		}
		return KindToolCall
	case AudioOutput:
		if h.OnAudio != nil {
			h.OnAudio(e)
		}
		return KindAudioOutput
	case Other:
		if h.OnOther != nil {
			h.OnOther(e)
		}
		return KindOther
	default:
		if h.OnOther != nil {
			h.OnOther(Other{Type: "unknown", Fields: map[string]any{}})
		}
		return KindOther
	}
}
