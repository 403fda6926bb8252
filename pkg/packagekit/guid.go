package packagekit

import (
	"crypto/md5"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// StableGuid derives a stable guid from a name. It's used as the
// package's UpgradeCode, so repeated builds of the same package name
// are recognized by the msi machinery as upgrades of one another
// rather than unrelated installs. We need these to be predictable
// from the inputs, so derive them instead of storing them. See
// https://docs.microsoft.com/en-us/windows/desktop/Msi/productcode
func StableGuid(name string) string {
	h := md5.New()
	io.WriteString(h, name)

	hash := h.Sum(nil)

	return fmt.Sprintf("%X-%X-%X-%X-%X", hash[0:4], hash[4:6], hash[6:8], hash[8:10], hash[10:16])
}

// componentGuid is fresh on every build. With a single file component
// per package, component identity does not need to be stable across
// versions.
func componentGuid() string {
	return strings.ToUpper(uuid.New().String())
}
