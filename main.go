package main

import (
	"github.com/rs/zerolog/log"

	configx "github.com/mediminds/voicerelay/pkg/config"
	_ "github.com/mediminds/voicerelay/pkg/logger/autoload"
	realtimex "github.com/mediminds/voicerelay/pkg/realtime"
	bridgex "github.com/mediminds/voicerelay/relay/bridge"
	toolx "github.com/mediminds/voicerelay/relay/tool"
	serverx "github.com/mediminds/voicerelay/server"
)

func main() {
	serverConf := configx.MustNew[serverx.Config]("SERVER")
	upstreamConf := configx.MustNew[realtimex.Config]("REALTIME")
	relayConf := configx.MustNew[bridgex.Config]("RELAY")

	registry := toolx.NewRegistry()
	if err := toolx.RegisterMultiply(registry); err != nil {
		log.Fatal().Err(err).Msg("register tools")
	}

	manager := bridgex.NewManager(*relayConf, registry, bridgex.RealtimeDialer(*upstreamConf))
	srv := serverx.New(*serverConf, manager)

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
