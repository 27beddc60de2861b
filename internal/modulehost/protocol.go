// Package modulehost runs the control channel between the platform and a
// hosted marketplace module. The browser shim renders the module in a
// sandboxed iframe and relays its postMessage frames here unchanged, so the
// protocol below mirrors the iframe message shapes.
package modulehost

import "encoding/json"

// Message types sent by modules.
const (
	TypeModuleReady           = "module:ready"
	TypeModuleRequestSettings = "module:request:settings"
	TypeModuleRequestResize   = "module:request:resize"
)

// Message types sent by the host.
const (
	TypeHostInit     = "host:init"
	TypeHostSettings = "host:settings"
	TypeHostResize   = "host:resize"
	TypeHostError    = "host:error"
)

// Error codes carried by host:error replies.
const (
	ErrMalformed   = "malformed"
	ErrUnknownType = "unknown_type"
	ErrBadHeight   = "bad_height"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type resizePayload struct {
	Height float64 `json:"height"`
}

func hostMessage(msgType string, payload any) Message {
	msg := Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			msg.Payload = data
		}
	}
	return msg
}

func errorMessage(code string) Message {
	return hostMessage(TypeHostError, map[string]string{"code": code})
}
