//go:build !windows

package ocilib

import (
	"runtime"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

func libraryName() string {
	if runtime.GOOS == "darwin" {
		return "libclntsh.dylib"
	}
	return "libclntsh.so"
}

func openLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func closeLibrary(h uintptr) {
	if h != 0 {
		purego.Dlclose(h)
	}
}

func symbol(h uintptr, name string) (uintptr, error) {
	if h == 0 {
		return 0, errors.New("invalid library handle")
	}
	return purego.Dlsym(h, name)
}
