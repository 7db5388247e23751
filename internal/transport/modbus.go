// Package transport provides the Modbus session the poller reads registers
// through. The connection is a single shared resource: all reads are
// serialized on an internal mutex, so concurrent range reads from one poll
// cycle never interleave on the wire.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	mb "github.com/simonvetter/modbus"

	"github.com/modmetrics/modmetrics/internal/schema"
)

// RegisterReader is the consumed transport interface: read a block of
// registers of one kind. Implementations must honor a bounded per-request
// timeout so no read blocks indefinitely.
type RegisterReader interface {
	ReadRegisters(ctx context.Context, kind schema.RegisterKind, start uint16, count uint16) ([]uint16, error)
}

// ModbusTransport reads registers from a Modbus TCP device.
type ModbusTransport struct {
	client *mb.ModbusClient
	mu     sync.Mutex
	url    string
}

// Options configures the Modbus session.
type Options struct {
	// URL of the device, e.g. tcp://10.0.0.7:502.
	URL string
	// UnitID addresses the slave behind a gateway; 1 if unset.
	UnitID uint8
	// Timeout bounds every read request.
	Timeout time.Duration
}

// NewModbusTransport opens a Modbus TCP session.
func NewModbusTransport(opts Options) (*ModbusTransport, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	client, err := mb.NewClient(&mb.ClientConfiguration{
		URL:     opts.URL,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus client: %w", err)
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", opts.URL, err)
	}
	unit := opts.UnitID
	if unit == 0 {
		unit = 1
	}
	if err := client.SetUnitId(unit); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("modbus unit id %d: %w", unit, err)
	}
	return &ModbusTransport{client: client, url: opts.URL}, nil
}

// ReadRegisters reads count registers starting at start. The request runs
// under the client's configured timeout; a timed-out read surfaces as an
// ordinary read error.
func (t *ModbusTransport) ReadRegisters(ctx context.Context, kind schema.RegisterKind, start uint16, count uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regType := mb.HOLDING_REGISTER
	if kind == schema.Input {
		regType = mb.INPUT_REGISTER
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	words, err := t.client.ReadRegisters(start, count, regType)
	if err != nil {
		return nil, fmt.Errorf("read %s [%d,%d) from %s: %w", kind, start, uint32(start)+uint32(count), t.url, err)
	}
	return words, nil
}

// Close shuts the session down. In-flight reads finish first because Close
// waits on the same mutex.
func (t *ModbusTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
