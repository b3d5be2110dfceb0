package model

// InboundFrame is what a client sends over its websocket.
type InboundFrame struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// DeliveryFrame is pushed to a receiver's websocket.
type DeliveryFrame struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// ErrorFrame tells a sender that a message was not accepted.
type ErrorFrame struct {
	Error string `json:"error"`
	To    string `json:"to,omitempty"`
}
