//go:build tools

package relay

import (
	_ "go.uber.org/mock/mockgen"
)
