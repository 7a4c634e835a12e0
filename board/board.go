// Package board drives the GPIO lines wired to the modem and the status LED.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

var ErrNoSuchPin = errors.New("no such GPIO pin")

// Init loads the host drivers. It must run before any pin is looked up.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("initialize GPIO host: %w", err)
	}
	return nil
}

// Pin looks up a GPIO by name, e.g. "GPIO4".
func Pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchPin, name)
	}
	return p, nil
}

// PowerKey is the modem's active-low PWRKEY input.
type PowerKey struct {
	mu  sync.Mutex
	pin gpio.PinOut
}

// NewPowerKey releases the key so that the modem is not held in reset.
func NewPowerKey(pin gpio.PinOut) (*PowerKey, error) {
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("release power key %s: %w", pin, err)
	}
	return &PowerKey{pin: pin}, nil
}

// Pulse pulls the key low for d. The key is released even when ctx ends
// early; a half pulse is ignored by the modem.
func (k *PowerKey) Pulse(ctx context.Context, d time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("press power key: %w", err)
	}

	t := time.NewTimer(d)
	defer t.Stop()
	var waitErr error
	select {
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-t.C:
	}

	if err := k.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("release power key: %w", err)
	}
	return waitErr
}

// LED is a status light. Several components write to it, so every change
// goes through one lock. A nil *LED is a valid, dark LED.
type LED struct {
	mu  sync.Mutex
	pin gpio.PinOut
	on  bool
}

func NewLED(pin gpio.PinOut, on bool) (*LED, error) {
	l := &LED{pin: pin}
	if err := l.set(on); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LED) Set(on bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.set(on)
}

func (l *LED) Toggle() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.set(!l.on)
}

func (l *LED) On() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *LED) set(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("set LED %s: %w", l.pin, err)
	}
	l.on = on
	return nil
}

// Open initializes the host and claims the named pins. An empty name skips
// that line and leaves the corresponding result nil.
func Open(powerKey, led string) (*PowerKey, *LED, error) {
	if powerKey == "" && led == "" {
		return nil, nil, nil
	}
	if err := Init(); err != nil {
		return nil, nil, err
	}

	var (
		key *PowerKey
		l   *LED
	)
	if powerKey != "" {
		p, err := Pin(powerKey)
		if err != nil {
			return nil, nil, err
		}
		if key, err = NewPowerKey(p); err != nil {
			return nil, nil, err
		}
	}
	if led != "" {
		p, err := Pin(led)
		if err != nil {
			return nil, nil, err
		}
		if l, err = NewLED(p, true); err != nil {
			return nil, nil, err
		}
	}
	return key, l, nil
}
