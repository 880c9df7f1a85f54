package queue

import "encoding/json"

// Codec serializes job envelopes for the driver. JSON is the default so that
// payloads stay inspectable from the HTTP query surface and redis-cli.
type Codec interface {
	Marshal(message interface{}) ([]byte, error)
	Unmarshal(data []byte, message interface{}) error
}

type jsonCodec struct{}

// Marshal serializes the message to bytes.
func (jsonCodec) Marshal(message interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// Unmarshal reverses the bytes to message.
func (jsonCodec) Unmarshal(data []byte, message interface{}) error {
	return json.Unmarshal(data, message)
}
