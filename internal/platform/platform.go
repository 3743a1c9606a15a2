// Package platform defines the operating systems builds are published for.
package platform

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
)

// ErrUnknownPlatform is returned when an identifier is not one of the supported platforms.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform identifiers as they appear in catalog records and request parameters.
const (
	MacOSX  = "macosx"
	Windows = "win"
	Linux   = "linux"
)

// Platform describes a supported operating system.
type Platform struct {
	ID          string // identifier used by the catalog (macosx, win, linux)
	DisplayName string // human readable name for rendered pages
	GOOS        string // matching Go runtime.GOOS value
}

// Supported returns the supported platforms in their canonical order.
func Supported() []Platform {
	return []Platform{
		{ID: MacOSX, DisplayName: "macOS", GOOS: "darwin"},
		{ID: Windows, DisplayName: "Windows", GOOS: "windows"},
		{ID: Linux, DisplayName: "Linux", GOOS: "linux"},
	}
}

// IDs returns the identifiers of the supported platforms.
func IDs() []string {
	platforms := Supported()
	ids := make([]string, 0, len(platforms))
	for _, p := range platforms {
		ids = append(ids, p.ID)
	}
	return ids
}

// IsSupported reports whether id names a supported platform.
func IsSupported(id string) bool {
	return slices.Contains(IDs(), id)
}

// FindPlatform finds a platform by its identifier.
func FindPlatform(id string) (Platform, error) {
	for _, p := range Supported() {
		if p.ID == id {
			return p, nil
		}
	}
	return Platform{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, id)
}

// CurrentPlatform returns the platform for the current system.
// Systems without a published build map to linux.
func CurrentPlatform() Platform {
	return fromGOOS(runtime.GOOS)
}

func fromGOOS(goos string) Platform {
	for _, p := range Supported() {
		if p.GOOS == goos {
			return p
		}
	}
	p, _ := FindPlatform(Linux)
	return p
}
