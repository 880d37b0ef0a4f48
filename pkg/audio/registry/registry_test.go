package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

type lowPriorityPlayerFactory struct{}

func (lowPriorityPlayerFactory) NewPlayerPCM() (types.PlayerPCM, error) { return nil, nil }

type highPriorityPlayerFactory struct{}

func (*highPriorityPlayerFactory) NewPlayerPCM() (types.PlayerPCM, error) { return nil, nil }

func TestPlayerFactoriesOrder(t *testing.T) {
	RegisterPlayerFactory(1, lowPriorityPlayerFactory{})
	RegisterPlayerFactory(100, &highPriorityPlayerFactory{})

	factories := PlayerFactories()
	require.Len(t, factories, 2)
	assert.IsType(t, &highPriorityPlayerFactory{}, factories[0])
	assert.IsType(t, lowPriorityPlayerFactory{}, factories[1])

	assert.Panics(t, func() {
		RegisterPlayerFactory(5, &lowPriorityPlayerFactory{})
	})
	assert.Contains(t, FactoryName(&highPriorityPlayerFactory{}), "registry.highPriorityPlayerFactory")
}
