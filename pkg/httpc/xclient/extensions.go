package xclient

import (
	"reflect"
)

// Extensions 请求级扩展袋。
//
// 以值的动态类型为键的异构存储：同一类型只占一个槽位，
// Insert 相同类型会覆盖旧值。每个请求独占一个实例，
// 不跨请求共享，因此无需任何同步。
//
// 中间件需要跨阶段传递可变状态时，存入指针类型即可原地修改；
// 存入值类型则 Get 返回的是副本，需 Insert 回写。
type Extensions struct {
	values map[reflect.Type]any
}

// NewExtensions 创建空的扩展袋。
func NewExtensions() *Extensions {
	return &Extensions{}
}

// Insert 按 v 的动态类型存入值，覆盖同类型的旧值。
// nil 值会被静默忽略（无类型可索引）。
func (e *Extensions) Insert(v any) {
	if e == nil || v == nil {
		return
	}
	if e.values == nil {
		e.values = make(map[reflect.Type]any, 4)
	}
	e.values[reflect.TypeOf(v)] = v
}

// Len 返回当前存储的条目数。
func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.values)
}

// lookup 按类型取值。缺失不是错误，用布尔值表达。
func (e *Extensions) lookup(t reflect.Type) (any, bool) {
	if e == nil || e.values == nil {
		return nil, false
	}
	v, ok := e.values[t]
	return v, ok
}

// Get 取出类型 T 的当前值。缺失时返回零值和 false。
//
// Go 的方法不支持类型参数，因此按 XKit 的惯例
// （参照 xretry.DoWithResult）以包级泛型函数提供。
func Get[T any](e *Extensions) (T, bool) {
	var zero T
	v, ok := e.lookup(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}

// Has 判断类型 T 是否已存入。
func Has[T any](e *Extensions) bool {
	_, ok := Get[T](e)
	return ok
}
