package vm

// ---------------------------------------------------------------------------
// SymbolTable: insertion-ordered name -> index mapping
// ---------------------------------------------------------------------------

// SymbolTable maps names to dense integer indices in insertion order.
// It backs three different namespaces: top-level global variables, method
// selectors, and the local-variable table of each compiler scope. Indices
// are stable for the lifetime of the table; entries are never removed.
type SymbolTable struct {
	byName map[string]int
	byID   []string
}

// NewSymbolTable creates a new empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string]int),
		byID:   make([]string, 0, 16),
	}
}

// Find returns the index for name, or -1 if it has not been added.
func (st *SymbolTable) Find(name string) int {
	if id, ok := st.byName[name]; ok {
		return id
	}
	return -1
}

// Add appends name and returns its new index, or -1 if name is already
// present.
func (st *SymbolTable) Add(name string) int {
	if _, ok := st.byName[name]; ok {
		return -1
	}
	id := len(st.byID)
	st.byName[name] = id
	st.byID = append(st.byID, name)
	return id
}

// Ensure returns the existing index for name, adding it first if needed.
func (st *SymbolTable) Ensure(name string) int {
	if id, ok := st.byName[name]; ok {
		return id
	}
	return st.Add(name)
}

// Name returns the name for an index, or "" if the index is invalid.
func (st *SymbolTable) Name(id int) string {
	if id < 0 || id >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// Len returns the number of entries.
func (st *SymbolTable) Len() int {
	return len(st.byID)
}

// All returns all names in index order. The slice is a copy.
func (st *SymbolTable) All() []string {
	result := make([]string, len(st.byID))
	copy(result, st.byID)
	return result
}
