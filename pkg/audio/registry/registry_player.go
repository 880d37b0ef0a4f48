package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

type PlayerPCMFactory interface {
	NewPlayerPCM() (types.PlayerPCM, error)
}

var (
	playerFactoryRegistryLocker sync.Mutex
	playerFactoryRegistry       = map[reflect.Type]withPriority[PlayerPCMFactory]{}
)

func RegisterPlayerFactory(
	priority int,
	playerPCMFactory PlayerPCMFactory,
) {
	playerFactoryRegistryLocker.Lock()
	defer playerFactoryRegistryLocker.Unlock()
	t := typeOf(playerPCMFactory)
	if _, ok := playerFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of PlayerPCM of type %v", t))
	}
	playerFactoryRegistry[t] = withPriority[PlayerPCMFactory]{
		Priority: priority,
		Factory:  playerPCMFactory,
	}
}

// PlayerFactories returns the registered factories, highest priority first.
func PlayerFactories() []PlayerPCMFactory {
	playerFactoryRegistryLocker.Lock()
	defer playerFactoryRegistryLocker.Unlock()
	return sortedByPriority(playerFactoryRegistry)
}
