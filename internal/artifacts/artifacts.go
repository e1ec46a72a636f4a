// Package artifacts holds files embedded in the binary.
package artifacts

import _ "embed"

// GlobalSettings is the default settings.yaml.
//
//go:embed global/settings.yaml
var GlobalSettings []byte
