package utils

import (
	"cmp"
	"slices"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"
)

// SortedKeys 获取Map的所有键并排序
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := maputil.Keys(m)
	slices.Sort(keys)
	return keys
}

// MapFilter 过滤Map
func MapFilter[K comparable, V any](m map[K]V, fn func(key K, value V) bool) map[K]V {
	return maputil.Filter(m, fn)
}

// SliceContains 判断切片是否包含某个元素
func SliceContains[T comparable](s []T, item T) bool {
	return slice.Contain(s, item)
}
