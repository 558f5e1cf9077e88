package template

// MapTemplate is a parameter map with every string value compiled.
// Nested maps and slices are walked recursively; non-string leaves
// pass through untouched.
type MapTemplate struct {
	node *compiledNode
}

type compiledNode struct {
	tmpl     *Template
	mapNode  map[string]*MapTemplate
	listNode []*MapTemplate
	plain    any
}

// CompileMap parses every string found in params. The original map is
// not modified.
func CompileMap(params map[string]any) (*MapTemplate, error) {
	return compileValue(params)
}

func compileValue(v any) (*MapTemplate, error) {
	switch typed := v.(type) {
	case string:
		t, err := Parse(typed)
		if err != nil {
			return nil, err
		}
		return &MapTemplate{node: &compiledNode{tmpl: t}}, nil
	case map[string]any:
		children := make(map[string]*MapTemplate, len(typed))
		for k, child := range typed {
			c, err := compileValue(child)
			if err != nil {
				return nil, err
			}
			children[k] = c
		}
		return &MapTemplate{node: &compiledNode{mapNode: children}}, nil
	case []any:
		children := make([]*MapTemplate, len(typed))
		for i, child := range typed {
			c, err := compileValue(child)
			if err != nil {
				return nil, err
			}
			children[i] = c
		}
		return &MapTemplate{node: &compiledNode{listNode: children}}, nil
	default:
		return &MapTemplate{node: &compiledNode{plain: typed}}, nil
	}
}

// Eval renders the compiled tree against data, returning a fresh value
// tree. Evaluation stops at the first unresolvable placeholder.
func (m *MapTemplate) Eval(data Data) (any, error) {
	switch {
	case m.node.tmpl != nil:
		return m.node.tmpl.Eval(data)
	case m.node.mapNode != nil:
		out := make(map[string]any, len(m.node.mapNode))
		for k, child := range m.node.mapNode {
			v, err := child.Eval(data)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case m.node.listNode != nil:
		out := make([]any, len(m.node.listNode))
		for i, child := range m.node.listNode {
			v, err := child.Eval(data)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return m.node.plain, nil
	}
}

// EvalMap evaluates a tree compiled from a map and returns it typed.
func (m *MapTemplate) EvalMap(data Data) (map[string]any, error) {
	v, err := m.Eval(data)
	if err != nil {
		return nil, err
	}
	out, ok := v.(map[string]any)
	if !ok {
		out = map[string]any{}
	}
	return out, nil
}

// Refs lists every placeholder across the whole tree.
func (m *MapTemplate) Refs() []Ref {
	var refs []Ref
	m.collectRefs(&refs)
	return refs
}

func (m *MapTemplate) collectRefs(refs *[]Ref) {
	switch {
	case m.node.tmpl != nil:
		*refs = append(*refs, m.node.tmpl.Refs()...)
	case m.node.mapNode != nil:
		for _, child := range m.node.mapNode {
			child.collectRefs(refs)
		}
	case m.node.listNode != nil:
		for _, child := range m.node.listNode {
			child.collectRefs(refs)
		}
	}
}
