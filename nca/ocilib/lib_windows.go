//go:build windows

package ocilib

import (
	"syscall"

	"github.com/pkg/errors"
)

func libraryName() string {
	return "oci.dll"
}

func openLibrary(path string) (uintptr, error) {
	h, err := syscall.LoadLibrary(path)
	if err != nil {
		return 0, err
	}
	return uintptr(h), nil
}

func closeLibrary(h uintptr) {
	if h != 0 {
		syscall.FreeLibrary(syscall.Handle(h))
	}
}

func symbol(h uintptr, name string) (uintptr, error) {
	if h == 0 {
		return 0, errors.New("invalid library handle")
	}
	return syscall.GetProcAddress(syscall.Handle(h), name)
}
