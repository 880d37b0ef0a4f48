package audio

import (
	"context"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/dtln/pkg/audio/registry"
)

const BufferSize = 100 * time.Millisecond

type Player struct {
	PlayerPCM
}

func NewPlayer(playerPCM PlayerPCM) *Player {
	return &Player{
		PlayerPCM: playerPCM,
	}
}

type playerFactory struct {
	registry.PlayerPCMFactory
}

func (f playerFactory) New() (PlayerPCM, error) {
	return f.NewPlayerPCM()
}

func (f playerFactory) Name() string {
	return registry.FactoryName(f.PlayerPCMFactory)
}

var lastSuccessfulPlayerFactory lastSuccessful[PlayerPCM]

// NewPlayerAuto picks the highest-priority registered backend that
// answers a ping; if none does it returns a player that discards everything.
func NewPlayerAuto(
	ctx context.Context,
) *Player {
	var factories []autoFactory[PlayerPCM]
	for _, f := range registry.PlayerFactories() {
		factories = append(factories, playerFactory{PlayerPCMFactory: f})
	}

	player, err := pickAuto(ctx, "player", &lastSuccessfulPlayerFactory, factories)
	if err != nil {
		logger.Infof(ctx, "was unable to initialize any PCM player: %v", err)
		return NewPlayer(PlayerPCMDummy{})
	}
	return NewPlayer(player)
}

func (a *Player) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	bufferSize time.Duration,
	pcmReader io.Reader,
) (PlayStream, error) {
	logger.Tracef(ctx, "PlayPCM: %T %d %d %s %v", a.PlayerPCM, sampleRate, channels, pcmFormat, bufferSize)
	return a.PlayerPCM.PlayPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		bufferSize,
		pcmReader,
	)
}
