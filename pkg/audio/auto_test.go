package audio

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	PlayerPCMDummy
	pingErr error
	closed  *int
}

func (p fakePlayer) Ping(context.Context) error { return p.pingErr }

func (p fakePlayer) Close() error {
	*p.closed++
	return nil
}

func (fakePlayer) PlayPCM(context.Context, SampleRate, Channel, PCMFormat, time.Duration, io.Reader) (PlayStream, error) {
	return StreamDummy{}, nil
}

type fakePlayerFactory struct {
	name    string
	newErr  error
	pingErr error
	closed  *int
	created *int
}

func (f fakePlayerFactory) New() (PlayerPCM, error) {
	*f.created++
	if f.newErr != nil {
		return nil, f.newErr
	}
	return fakePlayer{pingErr: f.pingErr, closed: f.closed}, nil
}

func (f fakePlayerFactory) Name() string { return f.name }

func TestPickAuto(t *testing.T) {
	ctx := context.Background()
	var closed, createdBroken, createdDead, createdGood int
	broken := fakePlayerFactory{name: "broken", newErr: fmt.Errorf("no device"), closed: &closed, created: &createdBroken}
	dead := fakePlayerFactory{name: "dead", pingErr: fmt.Errorf("no answer"), closed: &closed, created: &createdDead}
	good := fakePlayerFactory{name: "good", closed: &closed, created: &createdGood}

	var last lastSuccessful[PlayerPCM]
	p, err := pickAuto[PlayerPCM](ctx, "player", &last, []autoFactory[PlayerPCM]{broken, dead, good})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, closed, "the backend that failed the ping must be closed")
	assert.Equal(t, "good", last.get().Name())

	_, err = pickAuto[PlayerPCM](ctx, "player", &last, nil)
	require.NoError(t, err, "the last successful factory is tried first")
	assert.Equal(t, 2, createdGood)

	var empty lastSuccessful[PlayerPCM]
	_, err = pickAuto[PlayerPCM](ctx, "player", &empty, []autoFactory[PlayerPCM]{broken, dead})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
	assert.Contains(t, err.Error(), "no answer")
}
