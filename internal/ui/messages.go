package ui

import (
	"coinfall/client/internal/catalog"
	"coinfall/client/internal/session"
)

// ProtocolVersion is bumped when the bridge message shapes change.
const ProtocolVersion = 1

// clientMessage is the envelope the web view sends over the bridge socket.
type clientMessage struct {
	Type        string `json:"type"`
	BoosterType string `json:"boosterType,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
}

// stateMessage pushes the current render state to the web view.
type stateMessage struct {
	Ver  int          `json:"ver"`
	Type string       `json:"type"`
	View session.View `json:"view"`
}

// catalogMessage lists the shop once per connection.
type catalogMessage struct {
	Ver      int                  `json:"ver"`
	Type     string               `json:"type"`
	Boosters []catalog.Definition `json:"boosters"`
}

// errorMessage reports a rejected command without dropping the socket.
type errorMessage struct {
	Ver     int    `json:"ver"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

const (
	codeInsufficientEnergy  = "insufficient_energy"
	codeInsufficientBalance = "insufficient_balance"
	codeUnknownBooster      = "unknown_booster"
	codeCommandFailed       = "command_failed"
)
