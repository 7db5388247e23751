package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSchemaErrorFormatting(t *testing.T) {
	underlying := fmt.Errorf("%w: %q", ErrUnknownDataType, "uint8")
	err := &SchemaError{Document: "input.json", Register: "temp", Underlying: underlying}

	msg := err.Error()
	if !strings.Contains(msg, "input.json") || !strings.Contains(msg, "temp") {
		t.Errorf("Expected document and register in message, got %q", msg)
	}
	if !errors.Is(err, ErrUnknownDataType) {
		t.Error("Expected SchemaError to unwrap to the sentinel")
	}
}

func TestSchemaErrorWithoutRegister(t *testing.T) {
	err := &SchemaError{Document: "input.json", Underlying: ErrAddressOverlap}
	if strings.Contains(err.Error(), "register") {
		t.Errorf("Expected no register fragment, got %q", err.Error())
	}
}

func TestDecodeErrorMessage(t *testing.T) {
	err := &DecodeError{Register: "temp", Want: 2, Got: 1}
	msg := err.Error()
	if !strings.Contains(msg, "temp") || !strings.Contains(msg, "want 2") || !strings.Contains(msg, "got 1") {
		t.Errorf("Expected length mismatch detail, got %q", msg)
	}
}

func TestReadErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := &ReadError{Kind: "input", Start: 100, Count: 4, Underlying: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected ReadError to unwrap its cause")
	}
	if !strings.Contains(err.Error(), "[100,104)") {
		t.Errorf("Expected address range in message, got %q", err.Error())
	}
}

func TestSinkErrorWithStatus(t *testing.T) {
	err := &SinkError{Sink: "influxdb", StatusCode: 503, Underlying: fmt.Errorf("unavailable")}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status code in message, got %q", err.Error())
	}
}

func TestSinkErrorWithoutStatus(t *testing.T) {
	err := &SinkError{Sink: "prometheus", Underlying: fmt.Errorf("timeout")}
	if strings.Contains(err.Error(), "status") {
		t.Errorf("Expected no status fragment, got %q", err.Error())
	}
}

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError{Field: "POLL_INTERVAL", Value: "-1", Reason: "must be positive"}
	msg := err.Error()
	if !strings.Contains(msg, "POLL_INTERVAL") || !strings.Contains(msg, "must be positive") {
		t.Errorf("Expected field and reason, got %q", msg)
	}
}
