// Package gotreesitter implements a pure Go incremental parsing runtime in the
// style of tree-sitter: a table-driven lexer, a GLR parser with error
// recovery, persistent reference-counted syntax trees, incremental reparsing
// and a pattern query engine.
//
// This file defines the grammar tables consumed by the lexer and parser.
// They form the foundation on which the rest of the runtime is built.
package gotreesitter

import (
	"fmt"
	"sync"
)

// Symbol is a grammar symbol ID (terminal or nonterminal).
type Symbol uint16

// StateID is a parser state index.
type StateID uint16

// FieldID is a named field index. Zero means "no field".
type FieldID uint16

const (
	// LanguageVersion is the newest table layout this runtime understands.
	LanguageVersion = 14
	// MinCompatibleLanguageVersion is the oldest table layout still accepted.
	MinCompatibleLanguageVersion = 13
)

const (
	// SymbolEnd is the end-of-input terminal.
	SymbolEnd Symbol = 0
	// SymbolError is the symbol of ERROR nodes produced by error recovery.
	SymbolError Symbol = 65535

	errorSymbol = SymbolError
)

// ParseActionType identifies the kind of parse action.
type ParseActionType uint8

const (
	ParseActionShift ParseActionType = iota
	ParseActionReduce
	ParseActionAccept
	ParseActionRecover
)

// ParseAction is a single parser action from the parse table.
type ParseAction struct {
	Type              ParseActionType
	State             StateID // target state (shift/recover)
	Symbol            Symbol  // reduced symbol (reduce)
	ChildCount        uint8   // children consumed (reduce)
	DynamicPrecedence int16   // precedence (reduce)
	ProductionID      uint16  // which production (reduce)
	Extra             bool    // is this an extra token (shift)
	Repetition        bool    // is this a repetition (shift)
}

// ParseActionEntry is a group of actions for a (state, symbol) pair. More
// than one action means the grammar is locally ambiguous and the parser forks.
type ParseActionEntry struct {
	Reusable bool
	Actions  []ParseAction
}

// LexState is one state in the table-driven lexer DFA.
type LexState struct {
	AcceptToken Symbol // 0 if this state doesn't accept
	Skip        bool   // true if accepted chars are whitespace
	Transitions []LexTransition
	Default     int // default next state (-1 if none)
	EOF         int // state on EOF (-1 if none)
}

// LexTransition maps a character range to a next state.
type LexTransition struct {
	Lo, Hi    rune // inclusive character range
	NextState int
}

// LexMode maps a parser state to its lexer configuration.
type LexMode struct {
	LexState         uint16
	ExternalLexState uint16
}

// SymbolMetadata holds display information about a symbol.
type SymbolMetadata struct {
	Name      string
	Visible   bool
	Named     bool
	Supertype bool
}

// FieldMapEntry maps a structural child index to a field.
type FieldMapEntry struct {
	FieldID    FieldID
	ChildIndex uint8
	Inherited  bool
}

// ExternalScanner is implemented by languages that need hand-written
// scanning logic (indentation, heredocs, template strings).
type ExternalScanner interface {
	Create() any
	Destroy(payload any)
	Serialize(payload any, buf []byte) int
	Deserialize(payload any, buf []byte)
	Scan(payload any, lexer *ExternalLexer, validSymbols []bool) bool
}

// Language holds all data needed to parse a specific language. Tables are
// read-only once a Parser or Query has seen the Language.
type Language struct {
	Name string

	// ABIVersion is the table layout version the grammar was generated for.
	ABIVersion uint32

	// Counts
	SymbolCount        uint32
	TokenCount         uint32
	ExternalTokenCount uint32
	StateCount         uint32
	LargeStateCount    uint32
	FieldCount         uint32
	ProductionIDCount  uint32

	// Symbol metadata
	SymbolNames    []string
	SymbolMetadata []SymbolMetadata
	FieldNames     []string // index 0 is ""

	// Parse tables
	ParseTable         [][]uint16 // dense: [state][symbol] -> action index
	SmallParseTable    []uint16   // compressed sparse table
	SmallParseTableMap []uint32   // state - LargeStateCount -> offset into SmallParseTable
	ParseActions       []ParseActionEntry

	// Lex tables
	LexModes            []LexMode
	LexStates           []LexState // main lexer DFA
	KeywordLexStates    []LexState // keyword lexer DFA (optional)
	KeywordCaptureToken Symbol

	// Field mapping
	FieldMapSlices  [][2]uint16 // [production_id] -> (index, length)
	FieldMapEntries []FieldMapEntry

	// Alias sequences
	AliasSequences [][]Symbol // [production_id][child_index] -> alias symbol

	// Primary state IDs (for table dedup)
	PrimaryStateIDs []StateID

	// External scanner (nil if not needed)
	ExternalScanner       ExternalScanner
	ExternalSymbolMap     []Symbol // external token index -> symbol
	ExternalScannerStates [][]bool // [external lex state][external token index]

	// InitialState is the parser's start state. Generated grammars reserve
	// state 0 for error recovery and start at 1; hand-built grammars may
	// start at 0.
	InitialState StateID

	namesOnce    sync.Once
	namedSymbols map[string]Symbol
	anonSymbols  map[string]Symbol
	tokenSymbols map[string][]Symbol
	fieldIDs     map[string]FieldID
	public       []Symbol
}

// VersionError reports a grammar whose table layout the runtime cannot use.
type VersionError struct {
	Language string
	Version  uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("gotreesitter: language %q has incompatible version %d (supported %d..%d)",
		e.Language, e.Version, MinCompatibleLanguageVersion, LanguageVersion)
}

// Version returns the table layout version of the grammar.
func (l *Language) Version() uint32 { return l.ABIVersion }

// CompatibleWithRuntime reports whether the grammar version is supported.
func (l *Language) CompatibleWithRuntime() bool {
	return l.ABIVersion >= MinCompatibleLanguageVersion && l.ABIVersion <= LanguageVersion
}

func (l *Language) checkVersion() error {
	if l == nil {
		return ErrNoLanguage
	}
	if !l.CompatibleWithRuntime() {
		return &VersionError{Language: l.Name, Version: l.ABIVersion}
	}
	return nil
}

func (l *Language) buildNameIndex() {
	l.namesOnce.Do(func() {
		l.namedSymbols = make(map[string]Symbol, len(l.SymbolNames))
		l.anonSymbols = make(map[string]Symbol, len(l.SymbolNames))
		l.tokenSymbols = make(map[string][]Symbol)
		for i, name := range l.SymbolNames {
			sym := Symbol(i)
			named := l.IsNamedSymbol(sym)
			if named {
				if _, dup := l.namedSymbols[name]; !dup {
					l.namedSymbols[name] = sym
				}
			} else if _, dup := l.anonSymbols[name]; !dup {
				l.anonSymbols[name] = sym
			}
			if uint32(i) < l.TokenCount {
				l.tokenSymbols[name] = append(l.tokenSymbols[name], sym)
			}
		}
		l.public = make([]Symbol, len(l.SymbolNames))
		for i, name := range l.SymbolNames {
			if l.IsNamedSymbol(Symbol(i)) {
				l.public[i] = l.namedSymbols[name]
			} else {
				l.public[i] = l.anonSymbols[name]
			}
		}
		l.fieldIDs = make(map[string]FieldID, len(l.FieldNames))
		for i, name := range l.FieldNames {
			if i == 0 || name == "" {
				continue
			}
			l.fieldIDs[name] = FieldID(i)
		}
	})
}

// SymbolByName returns the symbol with the given name, preferring named
// symbols over anonymous ones.
func (l *Language) SymbolByName(name string) (Symbol, bool) {
	if sym, ok := l.SymbolForName(name, true); ok {
		return sym, true
	}
	return l.SymbolForName(name, false)
}

// SymbolForName looks a symbol up by name and namedness.
func (l *Language) SymbolForName(name string, named bool) (Symbol, bool) {
	if name == "ERROR" && named {
		return errorSymbol, true
	}
	l.buildNameIndex()
	if named {
		sym, ok := l.namedSymbols[name]
		return sym, ok
	}
	sym, ok := l.anonSymbols[name]
	return sym, ok
}

// TokenSymbolsByName returns every terminal symbol with the given name.
func (l *Language) TokenSymbolsByName(name string) []Symbol {
	l.buildNameIndex()
	return l.tokenSymbols[name]
}

// PublicSymbol maps sym to the first symbol sharing its name and
// namedness. Aliases can give several grammar symbols the same name; nodes
// report and queries match the public one.
func (l *Language) PublicSymbol(sym Symbol) Symbol {
	if sym == errorSymbol {
		return sym
	}
	l.buildNameIndex()
	if int(sym) < len(l.public) {
		return l.public[sym]
	}
	return sym
}

// FieldByName returns the field ID for a field name.
func (l *Language) FieldByName(name string) (FieldID, bool) {
	l.buildNameIndex()
	fid, ok := l.fieldIDs[name]
	return fid, ok
}

// FieldName returns the name of a field ID, or "" if unknown.
func (l *Language) FieldName(id FieldID) string {
	if int(id) < len(l.FieldNames) {
		return l.FieldNames[id]
	}
	return ""
}

// SymbolName returns the display name of a symbol.
func (l *Language) SymbolName(sym Symbol) string {
	if sym == errorSymbol {
		return "ERROR"
	}
	if int(sym) < len(l.SymbolNames) {
		return l.SymbolNames[sym]
	}
	return ""
}

// IsNamedSymbol reports whether the symbol is named (as opposed to anonymous
// syntax like punctuation and keywords).
func (l *Language) IsNamedSymbol(sym Symbol) bool {
	if sym == errorSymbol {
		return true
	}
	if int(sym) < len(l.SymbolMetadata) {
		return l.SymbolMetadata[sym].Named
	}
	return false
}

// IsVisibleSymbol reports whether nodes of this symbol appear in the tree API.
func (l *Language) IsVisibleSymbol(sym Symbol) bool {
	if sym == errorSymbol {
		return true
	}
	if int(sym) < len(l.SymbolMetadata) {
		return l.SymbolMetadata[sym].Visible
	}
	return false
}

// IsSupertype reports whether the symbol is a supertype (an abstract
// category such as "expression").
func (l *Language) IsSupertype(sym Symbol) bool {
	if int(sym) < len(l.SymbolMetadata) {
		return l.SymbolMetadata[sym].Supertype
	}
	return false
}

// IsTerminal reports whether sym is a token.
func (l *Language) IsTerminal(sym Symbol) bool {
	return uint32(sym) < l.TokenCount+l.ExternalTokenCount
}

// lookupAction looks up the parse action for the given state and symbol,
// consulting the dense table for large states and the compressed table for
// the rest.
func (l *Language) lookupAction(state StateID, sym Symbol) *ParseActionEntry {
	if sym == errorSymbol {
		return nil
	}
	idx, ok := l.actionIndex(state, sym)
	if !ok || idx == 0 || int(idx) >= len(l.ParseActions) {
		return nil
	}
	return &l.ParseActions[idx]
}

func (l *Language) actionIndex(state StateID, sym Symbol) (uint16, bool) {
	if int(state) < len(l.ParseTable) {
		row := l.ParseTable[state]
		if int(sym) < len(row) {
			return row[sym], true
		}
		return 0, false
	}
	if len(l.SmallParseTableMap) == 0 || uint32(state) < l.LargeStateCount {
		return 0, false
	}
	mapIdx := int(uint32(state) - l.LargeStateCount)
	if mapIdx >= len(l.SmallParseTableMap) {
		return 0, false
	}
	offset := int(l.SmallParseTableMap[mapIdx])
	if offset >= len(l.SmallParseTable) {
		return 0, false
	}
	groupCount := int(l.SmallParseTable[offset])
	offset++
	for g := 0; g < groupCount && offset+1 < len(l.SmallParseTable); g++ {
		value := l.SmallParseTable[offset]
		symbolCount := int(l.SmallParseTable[offset+1])
		offset += 2
		for i := 0; i < symbolCount && offset+i < len(l.SmallParseTable); i++ {
			if Symbol(l.SmallParseTable[offset+i]) == sym {
				return value, true
			}
		}
		offset += symbolCount
	}
	return 0, false
}

// hasActions reports whether any action exists for (state, sym).
func (l *Language) hasActions(state StateID, sym Symbol) bool {
	entry := l.lookupAction(state, sym)
	return entry != nil && len(entry.Actions) > 0
}

// lookupGoto returns the state reached after reducing sym in state, or 0.
// Goto entries are stored as shift actions in the nonterminal columns.
func (l *Language) lookupGoto(state StateID, sym Symbol) StateID {
	entry := l.lookupAction(state, sym)
	if entry == nil {
		return 0
	}
	for _, act := range entry.Actions {
		if act.Type == ParseActionShift && !act.Extra {
			return act.State
		}
	}
	return 0
}

// nextState returns the state reached after shifting or reducing sym.
func (l *Language) nextState(state StateID, sym Symbol) (StateID, bool) {
	entry := l.lookupAction(state, sym)
	if entry == nil {
		return 0, false
	}
	for _, act := range entry.Actions {
		if act.Type == ParseActionShift {
			if act.Extra {
				return state, true
			}
			return act.State, true
		}
	}
	return 0, false
}

func (l *Language) lexMode(state StateID) LexMode {
	if int(state) < len(l.LexModes) {
		return l.LexModes[state]
	}
	return LexMode{}
}

// fieldMap returns the field entries of a production.
func (l *Language) fieldMap(productionID uint16) []FieldMapEntry {
	if int(productionID) >= len(l.FieldMapSlices) {
		return nil
	}
	slice := l.FieldMapSlices[productionID]
	start, length := int(slice[0]), int(slice[1])
	if start+length > len(l.FieldMapEntries) {
		return nil
	}
	return l.FieldMapEntries[start : start+length]
}

// aliasAt returns the alias for a structural child of a production, or 0.
func (l *Language) aliasAt(productionID uint16, childIndex uint32) Symbol {
	if int(productionID) >= len(l.AliasSequences) {
		return 0
	}
	seq := l.AliasSequences[productionID]
	if int(childIndex) >= len(seq) {
		return 0
	}
	return seq[childIndex]
}

// validExternalSymbols returns the external tokens valid in a lex mode.
func (l *Language) validExternalSymbols(externalLexState uint16) []bool {
	if externalLexState == 0 || int(externalLexState) >= len(l.ExternalScannerStates) {
		return nil
	}
	return l.ExternalScannerStates[externalLexState]
}
