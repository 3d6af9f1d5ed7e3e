package luaapp

import (
	"encoding/json"
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// ToLua maps an event payload into Lua. Anything that is not already a JSON
// shape (nil, bool, number, string, []any, map[string]any) is marshalled to
// JSON first, so structs arrive as tables keyed by their json tags.
func ToLua(L *lua.LState, v any) lua.LValue {
	if lv, ok := jsonShapeToLua(L, v); ok {
		return lv
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return lua.LString(fmt.Sprint(v))
	}
	var shaped any
	if err := json.Unmarshal(raw, &shaped); err != nil {
		return lua.LString(raw)
	}
	lv, _ := jsonShapeToLua(L, shaped)
	return lv
}

func jsonShapeToLua(L *lua.LState, v any) (lua.LValue, bool) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, true
	case bool:
		return lua.LBool(x), true
	case string:
		return lua.LString(x), true
	case float64:
		return lua.LNumber(x), true
	case int:
		return lua.LNumber(x), true
	case int64:
		return lua.LNumber(x), true
	case []any:
		t := L.CreateTable(len(x), 0)
		for _, item := range x {
			t.Append(ToLua(L, item))
		}
		return t, true
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, item := range x {
			t.RawSetString(k, ToLua(L, item))
		}
		return t, true
	}
	return nil, false
}

// FromLua is the inverse of ToLua. A table whose keys are exactly 1..n
// becomes a []any; any other table becomes a map[string]any with numeric keys
// formatted as strings.
func FromLua(v lua.LValue) any {
	switch x := v.(type) {
	case nil:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := sequenceLen(x); n > 0 {
			list := make([]any, n)
			for i := range n {
				list[i] = FromLua(x.RawGetInt(i + 1))
			}
			return list
		}
		obj := make(map[string]any)
		x.ForEach(func(k, item lua.LValue) {
			obj[tableKey(k)] = FromLua(item)
		})
		return obj
	}
	if v == lua.LNil {
		return nil
	}
	return v.String()
}

// sequenceLen returns n when t's keys are exactly the integers 1..n, else 0.
func sequenceLen(t *lua.LTable) int {
	keys, top := 0, 0
	sequence := true
	t.ForEach(func(k, _ lua.LValue) {
		keys++
		n, ok := k.(lua.LNumber)
		if !ok || n < 1 || n != lua.LNumber(int(n)) {
			sequence = false
			return
		}
		top = max(top, int(n))
	})
	if !sequence || top != keys {
		return 0
	}
	return top
}

func tableKey(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok {
		return strconv.FormatFloat(float64(n), 'f', -1, 64)
	}
	return k.String()
}
