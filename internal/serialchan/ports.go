package serialchan

import (
	"errors"
	"fmt"
	"slices"

	"go.bug.st/serial"
)

// ErrPortNotFound is returned by CheckPort for an unknown device name.
var ErrPortNotFound = errors.New("serial port not found")

// ListPorts returns the names of the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// CheckPort returns an error unless name is one of the ports in ListPorts.
func CheckPort(name string) error {
	ports, err := ListPorts()
	if err != nil {
		return err
	}
	if !slices.Contains(ports, name) {
		return fmt.Errorf("%w: %s, check spelling of port name", ErrPortNotFound, name)
	}
	return nil
}
