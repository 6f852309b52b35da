package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// libraryName is the onnxruntime shared library file for the current OS.
func libraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// resolveLibraryPath returns the configured library if set, otherwise the
// first library found in lib/ next to the executable or the working
// directory. An empty result lets the binding fall back to its default.
func resolveLibraryPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", errors.Wrap(err, "onnxruntime library")
		}
		return configured, nil
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "lib"))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(wd, "lib"))
	}
	return findLibrary(dirs), nil
}

func findLibrary(dirs []string) string {
	name := libraryName()
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
