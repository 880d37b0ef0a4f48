package registry

import (
	"reflect"
	"sort"
)

func typeOf(factory any) reflect.Type {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// FactoryName returns a human-readable name of a backend factory for logs.
func FactoryName(factory any) string {
	t := typeOf(factory)
	return t.PkgPath() + "." + t.Name()
}

type withPriority[T any] struct {
	Priority int
	Factory  T
}

func sortedByPriority[T any](m map[reflect.Type]withPriority[T]) []T {
	var items []withPriority[T]
	for _, item := range m {
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return FactoryName(items[i].Factory) < FactoryName(items[j].Factory)
	})

	result := make([]T, 0, len(items))
	for _, item := range items {
		result = append(result, item.Factory)
	}
	return result
}
