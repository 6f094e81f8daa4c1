package core

// KeyCode identifies a keyboard key. Letters and space match their ASCII
// value.
type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
	KEY_LEFT   KeyCode = 0x25
	KEY_UP     KeyCode = 0x26
	KEY_RIGHT  KeyCode = 0x27
	KEY_DOWN   KeyCode = 0x28
	KEY_0      KeyCode = 0x30
	KEY_1      KeyCode = 0x31
	KEY_2      KeyCode = 0x32
	KEY_A      KeyCode = 0x41
	KEY_D      KeyCode = 0x44
	KEY_E      KeyCode = 0x45
	KEY_F      KeyCode = 0x46
	KEY_Q      KeyCode = 0x51
	KEY_R      KeyCode = 0x52
	KEY_S      KeyCode = 0x53
	KEY_W      KeyCode = 0x57
	KEY_Z      KeyCode = 0x5A

	KEYS_MAX_KEYS = 0x100
)

type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// Input holds the current and previous keyboard state and fires key events
// on the bus when a key changes.
type Input struct {
	bus      *EventBus
	current  KeyboardState
	previous KeyboardState
}

func NewInput(bus *EventBus) *Input {
	LogInfo("input subsystem initialized")
	return &Input{bus: bus}
}

// Update copies the current state to the previous one. Call once per frame.
func (in *Input) Update() {
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool { return key < KEYS_MAX_KEYS && in.current.Keys[key] }

func (in *Input) WasKeyDown(key KeyCode) bool { return key < KEYS_MAX_KEYS && in.previous.Keys[key] }

// ProcessKey records a key change and fires EVENT_CODE_KEY_PRESSED or
// EVENT_CODE_KEY_RELEASED. Repeated reports of the same state are ignored.
func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS || in.current.Keys[key] == pressed {
		return
	}
	in.current.Keys[key] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	var ctx EventContext
	ctx.Data.U16[0] = uint16(key)
	in.bus.Fire(code, nil, ctx)
}
