package domain

// StreamRole tags what a published stream is, so receivers can layer
// a camera feed and a screen share differently.
type StreamRole string

const (
	RoleCamera StreamRole = "camera"
	RoleScreen StreamRole = "screen"
	RoleOther  StreamRole = "other"
)

// AppData is application metadata attached to a producer. Known roles are
// typed; Extra is the open extension field for anything else a client sends.
type AppData struct {
	Role  StreamRole        `json:"role"`
	Label string            `json:"label,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// NewAppData normalizes an incoming role, folding unknown ones into RoleOther.
func NewAppData(role, label string, extra map[string]string) AppData {
	r := StreamRole(role)
	switch r {
	case RoleCamera, RoleScreen:
	default:
		r = RoleOther
	}
	return AppData{Role: r, Label: label, Extra: extra}
}
