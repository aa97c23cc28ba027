package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Role string

const (
	RoleInput     Role = "input"
	RoleCrop      Role = "crop"
	RoleAnnotated Role = "annotated"
)

// DefaultExtension is used when the uploaded filename carries no usable
// extension.
const DefaultExtension = ".jpg"

// Name is the single source of artifact filenames. index is only meaningful
// for RoleCrop. The result depends on nothing but its arguments, so the
// public URL of any artifact can be rebuilt from the request id.
func Name(requestID string, role Role, index int, ext string) string {
	switch role {
	case RoleCrop:
		return fmt.Sprintf("%s_%s_%d%s", role, requestID, index, ext)
	default:
		return fmt.Sprintf("%s_%s%s", role, requestID, ext)
	}
}

// ExtensionOf returns the extension of filename including the dot, or
// DefaultExtension when there is none or it holds anything but letters and
// digits.
func ExtensionOf(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	if len(ext) < 2 {
		return DefaultExtension
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return DefaultExtension
		}
	}
	return ext
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
