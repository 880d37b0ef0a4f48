package oto

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

const drainPollInterval = 10 * time.Millisecond

type stream struct {
	player *oto.Player
}

var _ types.PlayStream = (*stream)(nil)

func newStream(player *oto.Player) *stream {
	return &stream{player: player}
}

func (s *stream) Drain() error {
	for s.player.IsPlaying() {
		time.Sleep(drainPollInterval)
	}
	if err := s.player.Err(); err != nil {
		return fmt.Errorf("an error occurred during playback: %w", err)
	}
	return nil
}

func (s *stream) Close() error {
	return s.player.Close()
}
