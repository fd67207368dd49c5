package luahost

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/sipeed/ircclaw/pkg/event"
)

const queueTypeName = "queue"

// openSafeLibraries opens the base, table, string and math libraries only.
// Scripts get no io, os, debug or package access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// registerQueueType installs the metatable for queue userdata. Handlers call
// q:push(command, params...) and q:push_embedded(command, target, text).
func registerQueueType(L *lua.LState) {
	mt := L.NewTypeMetatable(queueTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), queueMethods))
}

var queueMethods = map[string]lua.LGFunction{
	"push":          queuePush,
	"push_embedded": queuePushEmbedded,
}

func checkQueue(L *lua.LState) *event.Queue {
	ud := L.CheckUserData(1)
	if q, ok := ud.Value.(*event.Queue); ok {
		return q
	}
	L.ArgError(1, "queue expected")
	return nil
}

// queuePush enqueues a plain command event:
//
//	q:push("PRIVMSG", "#chan", "hello")
func queuePush(L *lua.LState) int {
	q := checkQueue(L)
	command := L.CheckString(2)
	params := make([]string, 0, L.GetTop()-2)
	for i := 3; i <= L.GetTop(); i++ {
		params = append(params, L.CheckString(i))
	}
	q.Push(event.NewServerEvent(command, params...))
	return 0
}

// queuePushEmbedded enqueues an embedded event. The optional fourth argument
// selects a request instead of the default reply:
//
//	q:push_embedded("VERSION", nick, "ircclaw")        -- reply, via NOTICE
//	q:push_embedded("ACTION", "#chan", "waves", false) -- request, via PRIVMSG
func queuePushEmbedded(L *lua.LState) int {
	q := checkQueue(L)
	command := L.CheckString(2)
	target := L.CheckString(3)
	text := L.CheckString(4)
	reply := true
	if L.GetTop() >= 5 {
		reply = lua.LVAsBool(L.Get(5))
	}
	q.Push(event.NewEmbeddedEvent(command, reply, target, text))
	return 0
}

// queueUserdata wraps the live queue for one handler invocation.
func queueUserdata(L *lua.LState, q *event.Queue) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = q
	L.SetMetatable(ud, L.GetTypeMetatable(queueTypeName))
	return ud
}

// eventToTable renders an event for script consumption. The nil event handed
// to "sending.all" observers becomes lua nil.
func eventToTable(L *lua.LState, ev event.Event) lua.LValue {
	if ev == nil {
		return lua.LNil
	}

	t := L.NewTable()
	t.RawSetString("command", lua.LString(ev.Command()))
	t.RawSetString("subtype", lua.LString(event.Subtype(ev)))

	params := L.NewTable()
	for i, p := range ev.Params() {
		params.RawSetInt(i+1, lua.LString(p))
	}
	t.RawSetString("params", params)

	if conn := ev.Connection(); conn != nil {
		t.RawSetString("connection", lua.LString(conn.Name()))
	}

	switch v := ev.(type) {
	case *event.PeerEvent:
		t.RawSetString("nick", lua.LString(v.Peer().Nick))
		t.RawSetString("user", lua.LString(v.Peer().User))
		t.RawSetString("host", lua.LString(v.Peer().Host))
	case *event.EmbeddedEvent:
		t.RawSetString("embedded", lua.LString(v.Embedded()))
		t.RawSetString("is_reply", lua.LBool(v.IsReply()))
	case *event.ServerEvent:
		t.RawSetString("code", lua.LString(v.Code()))
	}
	return t
}

// logModule exposes log.debug/info/warn/error to the script, routed through
// the plugin's logger so script output carries the plugin component.
func logModule(L *lua.LState, p *Plugin) *lua.LTable {
	fns := map[string]lua.LGFunction{
		"debug": func(L *lua.LState) int { p.log.Debug(L.CheckString(1)); return 0 },
		"info":  func(L *lua.LState) int { p.log.Info(L.CheckString(1)); return 0 },
		"warn":  func(L *lua.LState) int { p.log.Warn(L.CheckString(1)); return 0 },
		"error": func(L *lua.LState) int { p.log.Error(L.CheckString(1)); return 0 },
	}
	return L.SetFuncs(L.NewTable(), fns)
}
