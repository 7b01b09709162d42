// Package common contains the wire-level constants and shared helpers for the
// APNS binary gateway protocol.
package common

import "time"

// Command bytes of the gateway wire format.
const (
	CommandSimple   uint8 = 0 // simple notification, no delivery tracking
	CommandEnhanced uint8 = 1 // enhanced notification with identifier/expiry
	CommandFrame    uint8 = 2 // item-framed notification (protocol v2)
	CommandError    uint8 = 8 // error response from the gateway
)

// Status codes carried by the 6-byte error response.
const (
	Status0Success            uint8 = 0
	Status1ProcessingError    uint8 = 1
	Status2MissingDeviceToken uint8 = 2
	Status3MissingTopic       uint8 = 3
	Status4MissingPayload     uint8 = 4
	Status5InvalidTokenSize   uint8 = 5
	Status6InvalidTopicSize   uint8 = 6
	Status7InvalidPayloadSize uint8 = 7
	Status8InvalidToken       uint8 = 8
	Status10Shutdown          uint8 = 10
	StatusUnknown             uint8 = 255
)

var statusText = map[uint8]string{
	Status0Success:            "no errors encountered",
	Status1ProcessingError:    "processing error",
	Status2MissingDeviceToken: "missing device token",
	Status3MissingTopic:       "missing topic",
	Status4MissingPayload:     "missing payload",
	Status5InvalidTokenSize:   "invalid token size",
	Status6InvalidTopicSize:   "invalid topic size",
	Status7InvalidPayloadSize: "invalid payload size",
	Status8InvalidToken:       "invalid token",
	Status10Shutdown:          "server closed the connection (shutdown)",
	StatusUnknown:             "unknown error",
}

// StatusText returns the gateway's documented meaning for a status code.
// Codes the protocol does not name map to the unknown description, so new
// gateway codes degrade gracefully instead of failing the decode.
func StatusText(status uint8) string {
	if msg, ok := statusText[status]; ok {
		return msg
	}
	return statusText[StatusUnknown]
}

// Production and sandbox endpoints of the gateway and feedback services.
const (
	GatewayAddr         = "gateway.push.apple.com:2195"
	GatewayAddrSandbox  = "gateway.sandbox.push.apple.com:2195"
	FeedbackAddr        = "feedback.push.apple.com:2196"
	FeedbackAddrSandbox = "feedback.sandbox.push.apple.com:2196"
)

// Defaults for the knobs the protocol itself does not pin down. The payload
// ceiling was 256 bytes in early gateway versions and 2048 later; both are
// accepted, the newer one is the default.
const (
	DefaultMaxPayloadSize = 2048
	DefaultBufferSize     = 100
	DefaultBufferLifetime = 5 * time.Minute
	DefaultConnectTimeout = 20 * time.Second
	DefaultTokenLength    = 32
)
