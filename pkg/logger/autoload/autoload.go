// Package autoload configures the global logger from the LOGGER_*
// environment variables as a side effect of being imported.
package autoload

import (
	configx "github.com/mediminds/voicerelay/pkg/config"
	logx "github.com/mediminds/voicerelay/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOGGER"))
}
