package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/loomworks/loom/pkg/api"
)

type (
	// Lua executes script steps in a sandboxed Lua environment with state
	// pooling and bytecode caching
	Lua struct {
		statePool chan *lua.State
		scripts   sync.Map
	}

	compiledLua struct {
		bytecode []byte
		argNames []string
	}

	// Condition evaluates condition steps as Lua predicates. The boolean
	// result is reported in the step output; skip semantics are applied by
	// the scheduler
	Condition struct {
		lua *Lua
	}
)

const (
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaTableIndex       = -3
	luaArgLocalTemplate = "local %s = select(%d, ...)"
	luaGlobalTableName  = "_G"
)

var (
	ErrNoScript     = errors.New("script step has no source")
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

var (
	_ Executor = (*Lua)(nil)
	_ Executor = (*Condition)(nil)
)

func NewLua() *Lua {
	return &Lua{
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

func NewCondition(l *Lua) *Condition {
	return &Condition{lua: l}
}

func (e *Lua) Execute(
	ctx context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	src := step.Config.GetString("source", "")
	if src == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoScript, step.ID)
	}
	return e.run(ctx, src, inputs)
}

func (c *Condition) Execute(
	ctx context.Context, step *api.Step, inputs api.Args,
) (api.Args, error) {
	expr := step.Config.GetString("expression", "")
	if expr == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoExpression, step.ID)
	}

	res, err := c.lua.run(ctx, "return ("+expr+")", inputs)
	if err != nil {
		return nil, err
	}

	passed, _ := res["result"].(bool)
	return api.Args{"result": passed}, nil
}

// Validate checks a script for syntax errors without running it
func (e *Lua) Validate(src string, inputs api.Args) error {
	_, err := e.compileCached(src, argNames(inputs))
	return err
}

func (e *Lua) run(
	ctx context.Context, src string, inputs api.Args,
) (api.Args, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := argNames(inputs)
	c, err := e.compileCached(src, names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	if err := L.Load(bytes.NewReader(c.bytecode), "chunk", "b"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	for _, name := range c.argNames {
		pushLuaArg(L, inputs, name)
	}

	if err := L.ProtectedCall(len(c.argNames), 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	var result api.Args
	if L.IsTable(-1) {
		result = luaTableToArgs(L, -1)
	} else {
		result = api.Args{"result": luaToGo(L, -1)}
	}
	L.Pop(1)

	return result, nil
}

// argNames orders input keys deterministically so compiled bytecode can be
// keyed and reused across calls with the same input shape
func argNames(inputs api.Args) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		if isLuaIdentifier(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func isLuaIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}

func (e *Lua) compileCached(
	src string, names []string,
) (*compiledLua, error) {
	key := src + "\x00" + strings.Join(names, ",")
	if val, ok := e.scripts.Load(key); ok {
		return val.(*compiledLua), nil
	}

	c, err := e.compile(src, names)
	if err == nil {
		e.scripts.Store(key, c)
	}
	return c, err
}

func (e *Lua) compile(src string, names []string) (*compiledLua, error) {
	locals := make([]string, len(names))
	for i, name := range names {
		locals[i] = fmt.Sprintf(luaArgLocalTemplate, name, i+1)
	}

	full := strings.Join([]string{strings.Join(locals, "\n"), src}, "\n")

	L := lua.NewState()
	e.setupSandbox(L)

	if err := lua.LoadString(L, full); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, err
	}

	return &compiledLua{
		bytecode: buf.Bytes(),
		argNames: names,
	}, nil
}

func (e *Lua) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *Lua) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *Lua) returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case e.statePool <- L:
	default:
	}
}

func pushLuaArg(L *lua.State, inputs api.Args, name string) {
	if value, ok := inputs[name]; ok {
		goToLua(L, value)
		return
	}
	L.PushNil()
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case api.Args:
		pushLuaMap(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaTableIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		goToLua(L, val)
		L.SetTable(luaTableIndex)
	}
}

func luaNumberToGo(L *lua.State, index int) any {
	num, _ := L.ToNumber(index)
	if num == float64(int(num)) {
		return int(num)
	}
	return num
}

func luaToGo(L *lua.State, index int) any {
	switch {
	case L.IsNil(index):
		return nil
	case L.IsBoolean(index):
		return L.ToBoolean(index)
	case L.IsNumber(index):
		return luaNumberToGo(L, index)
	case L.IsString(index):
		s, _ := L.ToString(index)
		return s
	case L.IsTable(index):
		return luaTableToAny(L, index)
	default:
		return nil
	}
}

func luaTableToArgs(L *lua.State, index int) api.Args {
	result := api.Args{}

	L.PushNil()
	for L.Next(index - 1) {
		if L.IsString(-2) {
			key, _ := L.ToString(-2)
			result[key] = luaToGo(L, -1)
		}
		L.Pop(1)
	}

	return result
}

func luaTableToAny(L *lua.State, index int) any {
	isArray := true
	length := 0

	L.PushNil()
	for L.Next(index - 1) {
		if !L.IsNumber(-2) {
			isArray = false
			L.Pop(1)
			break
		}
		length++
		L.Pop(1)
	}

	if isArray && length > 0 {
		return convertLuaArray(L, index, length)
	}

	result := map[string]any{}
	L.PushNil()
	for L.Next(index - 1) {
		var key string
		if !L.IsString(-2) {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
			result[key] = luaToGo(L, -1)
			L.Pop(1)
			continue
		}
		key, _ = L.ToString(-2)
		result[key] = luaToGo(L, -1)
		L.Pop(1)
	}

	return result
}

func convertLuaArray(L *lua.State, index, length int) []any {
	arr := make([]any, length)
	absIndex := index
	if index < 0 {
		absIndex = L.Top() + index + 1
	}
	for i := 1; i <= length; i++ {
		L.RawGetInt(absIndex, i)
		arr[i-1] = luaToGo(L, -1)
		L.Pop(1)
	}
	return arr
}
