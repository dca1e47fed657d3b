package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names accepted in configuration and on the command line.
const (
	TypeTemperature = "temperature"
	TypeHello       = "hello"
)

// Temperature is the reading published on the ChocolateTemperature topic.
type Temperature struct {
	SensorID  string    `json:"sensor_id"`
	Degrees   int32     `json:"degrees"`
	Timestamp time.Time `json:"ts"`
}

// HelloMessage is the minimal payload of the hello world topic.
type HelloMessage struct {
	Msg string `json:"msg"`
}

// EncodeTemperature serializes t into a record payload.
func EncodeTemperature(t Temperature) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTemperature parses a payload written by EncodeTemperature.
func DecodeTemperature(payload []byte) (Temperature, error) {
	var t Temperature
	if err := json.Unmarshal(payload, &t); err != nil {
		return Temperature{}, fmt.Errorf("decode temperature: %w", err)
	}
	if t.SensorID == "" {
		return Temperature{}, fmt.Errorf("decode temperature: missing sensor_id")
	}
	return t, nil
}

// EncodeHello serializes m into a record payload.
func EncodeHello(m HelloMessage) ([]byte, error) {
	return json.Marshal(m)
}

// DefaultTopic returns the well-known topic name for a sample type.
func DefaultTopic(typeName string) string {
	if typeName == TypeHello {
		return "Example HelloMessage"
	}
	return "ChocolateTemperature"
}
