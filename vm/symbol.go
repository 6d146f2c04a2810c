package vm

import "sync"

// Symbol is an interned identifier. The zero Symbol means "no symbol".
type Symbol uint32

// ---------------------------------------------------------------------------
// Well-known symbols
// ---------------------------------------------------------------------------

// Well-known symbols are registered in this order by NewSymbolTable, so their
// IDs are stable across tables and can be compared without interning.
const (
	SymNone Symbol = iota
	SymInitialize
	SymInitializeCopy
	SymMethodMissing
	SymRespondToMissing
	SymAdd
	SymSub
	SymMul
	SymDiv
	SymMod
	SymPow
	SymEq
	SymNeq
	SymNot
	SymLt
	SymLe
	SymGt
	SymGe
	SymCmp
	SymEqq
	SymUMinus
	SymLshift
	SymAref
	SymAset
	SymCall
	SymToS
	SymToStr
	SymToA
	SymToProc
	SymToSym
	SymInspect
	SymHash
	SymEqlP
	SymNew
	SymEach
	SymMessage
	SymBacktrace
	SymName
	SymInherited
	SymMethodAdded
	SymSingletonMethodAdded
	SymIncluded
	SymExtended
	SymPrepended
	SymConstMissing
	SymExceptionIvar
	SymAttached

	SymBasicObject
	SymObject
	SymModule
	SymClass
	SymKernel
	SymComparable
	SymException
	SymStandardError
	SymRuntimeError
	SymScriptError
	SymNotImplementedError
	SymArgumentError
	SymLocalJumpError
	SymRangeError
	SymFloatDomainError
	SymTypeError
	SymNameError
	SymNoMethodError
	SymFrozenError
	SymZeroDivisionError
	SymKeyError
	SymIndexError
	SymStopIteration
	SymSystemStackError
	SymFiberError

	numWellKnownSymbols
)

var wellKnownSymbols = [numWellKnownSymbols]string{
	SymNone:                 "",
	SymInitialize:           "initialize",
	SymInitializeCopy:       "initialize_copy",
	SymMethodMissing:        "method_missing",
	SymRespondToMissing:     "respond_to_missing?",
	SymAdd:                  "+",
	SymSub:                  "-",
	SymMul:                  "*",
	SymDiv:                  "/",
	SymMod:                  "%",
	SymPow:                  "**",
	SymEq:                   "==",
	SymNeq:                  "!=",
	SymNot:                  "!",
	SymLt:                   "<",
	SymLe:                   "<=",
	SymGt:                   ">",
	SymGe:                   ">=",
	SymCmp:                  "<=>",
	SymEqq:                  "===",
	SymUMinus:               "-@",
	SymLshift:               "<<",
	SymAref:                 "[]",
	SymAset:                 "[]=",
	SymCall:                 "call",
	SymToS:                  "to_s",
	SymToStr:                "to_str",
	SymToA:                  "to_a",
	SymToProc:               "to_proc",
	SymToSym:                "to_sym",
	SymInspect:              "inspect",
	SymHash:                 "hash",
	SymEqlP:                 "eql?",
	SymNew:                  "new",
	SymEach:                 "each",
	SymMessage:              "message",
	SymBacktrace:            "backtrace",
	SymName:                 "name",
	SymInherited:            "inherited",
	SymMethodAdded:          "method_added",
	SymSingletonMethodAdded: "singleton_method_added",
	SymIncluded:             "included",
	SymExtended:             "extended",
	SymPrepended:            "prepended",
	SymConstMissing:         "const_missing",
	SymExceptionIvar:        "__exception__",
	SymAttached:             "__attached__",

	SymBasicObject:         "BasicObject",
	SymObject:              "Object",
	SymModule:              "Module",
	SymClass:               "Class",
	SymKernel:              "Kernel",
	SymComparable:          "Comparable",
	SymException:           "Exception",
	SymStandardError:       "StandardError",
	SymRuntimeError:        "RuntimeError",
	SymScriptError:         "ScriptError",
	SymNotImplementedError: "NotImplementedError",
	SymArgumentError:       "ArgumentError",
	SymLocalJumpError:      "LocalJumpError",
	SymRangeError:          "RangeError",
	SymFloatDomainError:    "FloatDomainError",
	SymTypeError:           "TypeError",
	SymNameError:           "NameError",
	SymNoMethodError:       "NoMethodError",
	SymFrozenError:         "FrozenError",
	SymZeroDivisionError:   "ZeroDivisionError",
	SymKeyError:            "KeyError",
	SymIndexError:          "IndexError",
	SymStopIteration:       "StopIteration",
	SymSystemStackError:    "SystemStackError",
	SymFiberError:          "FiberError",
}

// ---------------------------------------------------------------------------
// SymbolTable: Interned symbols
// ---------------------------------------------------------------------------

// SymbolTable interns byte-string names to unique IDs.
type SymbolTable struct {
	mu     sync.RWMutex
	byName map[string]Symbol // name -> ID
	byID   []string          // ID -> name
}

// NewSymbolTable creates a symbol table with the well-known symbols
// pre-registered.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{
		byName: make(map[string]Symbol, 512),
		byID:   make([]string, 0, 512),
	}
	for i, name := range wellKnownSymbols {
		st.byName[name] = Symbol(i)
		st.byID = append(st.byID, name)
	}
	return st
}

// Intern returns the ID for a name, creating a new one if needed.
func (st *SymbolTable) Intern(name string) Symbol {
	// Fast path: read-only lookup
	st.mu.RLock()
	if id, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := st.byName[name]; ok {
		return id
	}

	id := Symbol(len(st.byID))
	st.byName[name] = id
	st.byID = append(st.byID, name)
	return id
}

// InternBytes interns a byte slice. The bytes are copied.
func (st *SymbolTable) InternBytes(name []byte) Symbol {
	return st.Intern(string(name))
}

// Lookup returns the ID for a name, or SymNone and false if not interned.
func (st *SymbolTable) Lookup(name string) (Symbol, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byName[name]
	return id, ok
}

// Name returns the name for an ID. Out-of-range IDs return "".
func (st *SymbolTable) Name(id Symbol) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}
