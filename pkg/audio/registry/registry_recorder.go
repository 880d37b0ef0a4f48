package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

type RecorderPCMFactory interface {
	NewRecorderPCM() (types.RecorderPCM, error)
}

var (
	recorderFactoryRegistryLocker sync.Mutex
	recorderFactoryRegistry       = map[reflect.Type]withPriority[RecorderPCMFactory]{}
)

func RegisterRecorderFactory(
	priority int,
	recorderPCMFactory RecorderPCMFactory,
) {
	recorderFactoryRegistryLocker.Lock()
	defer recorderFactoryRegistryLocker.Unlock()
	t := typeOf(recorderPCMFactory)
	if _, ok := recorderFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of RecorderPCM of type %v", t))
	}
	recorderFactoryRegistry[t] = withPriority[RecorderPCMFactory]{
		Priority: priority,
		Factory:  recorderPCMFactory,
	}
}

func RecorderFactories() []RecorderPCMFactory {
	recorderFactoryRegistryLocker.Lock()
	defer recorderFactoryRegistryLocker.Unlock()
	return sortedByPriority(recorderFactoryRegistry)
}
