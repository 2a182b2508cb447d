package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Device is where the deployed model runs. The zero value is the CPU.
type Device struct {
	Type  string
	Index int
}

// ParseDevice accepts "cpu", "cuda" and "cuda:N". An empty string means cpu.
func ParseDevice(s string) (Device, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == DeviceCPU {
		return Device{Type: DeviceCPU}, nil
	}
	typ, idx, hasIdx := strings.Cut(s, ":")
	if typ != DeviceCUDA {
		return Device{}, fmt.Errorf("unknown device %q, expected cpu, cuda or cuda:N", s)
	}
	if !hasIdx {
		return Device{Type: DeviceCUDA}, nil
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Device{}, fmt.Errorf("invalid device index in %q", s)
	}
	return Device{Type: DeviceCUDA, Index: n}, nil
}

// IsAccelerator reports whether the device is a GPU.
func (d Device) IsAccelerator() bool {
	return d.Type == DeviceCUDA
}

func (d Device) String() string {
	switch {
	case d.Type == "":
		return DeviceCPU
	case d.IsAccelerator():
		return fmt.Sprintf("%s:%d", d.Type, d.Index)
	default:
		return d.Type
	}
}
