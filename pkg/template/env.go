package template

// Environment is one scope of template variables. Child scopes shadow their
// parents; lookups walk from the innermost scope outwards. A scope is never
// modified after creation, so sharing one between goroutines is safe.
type Environment struct {
	parent *Environment
	vars   map[string]interface{}
}

// NewEnvironment creates the root scope, usually seeded from declarations.
// The map is referenced, not copied, and is never written to.
func NewEnvironment(vars map[string]interface{}) *Environment {
	return &Environment{vars: vars}
}

// Push returns a child scope holding vars.
func (e *Environment) Push(vars map[string]interface{}) *Environment {
	scope := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		scope[k] = v
	}
	return &Environment{parent: e, vars: scope}
}

// With returns a child scope binding a single variable.
func (e *Environment) With(name string, value interface{}) *Environment {
	return &Environment{parent: e, vars: map[string]interface{}{name: value}}
}

// Pop returns the enclosing scope.
func (e *Environment) Pop() *Environment {
	if e == nil {
		return nil
	}
	return e.parent
}

func (e *Environment) Lookup(name string) (interface{}, bool) {
	for scope := e; scope != nil; scope = scope.parent {
		if v, ok := scope.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Depth is the number of scopes from e to the root, inclusive.
func (e *Environment) Depth() int {
	n := 0
	for scope := e; scope != nil; scope = scope.parent {
		n++
	}
	return n
}
