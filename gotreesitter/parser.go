package gotreesitter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MaxRecoveryAttempts bounds the number of error recoveries in one parse.
// Once it is exhausted, the rest of the input is wrapped in a single ERROR
// node.
const MaxRecoveryAttempts = 1024

// maxRecoveriesPerPosition bounds recoveries of one version without
// consuming input.
const maxRecoveriesPerPosition = 8

// maxRecoverDepth bounds how many stack entries error recovery may pop.
const maxRecoverDepth = 64

// TokenSource provides tokens to the parser in place of the table-driven
// lexer. A Token with Symbol == SymbolEnd ends the input; a zero-symbol Token
// with a non-empty span is skipped like whitespace.
type TokenSource interface {
	Next() Token
}

// ByteSkippableTokenSource can jump to a byte offset, which lets incremental
// parses skip the text covered by reused subtrees.
type ByteSkippableTokenSource interface {
	TokenSource
	SkipToByte(offset uint32) Token
}

// Parser is a GLR parser that reads parse tables from a Language and
// produces syntax trees. A Parser is not safe for concurrent use; use one
// Parser per goroutine.
type Parser struct {
	language *Language

	logger *zap.Logger
	debug  bool

	timeout        time.Duration
	cancelFlag     *atomic.Bool
	includedRanges []Range

	arena     *stackArena
	session   *parseSession
	lastStats ParseStats
}

// parseSession is the state of one parse. It survives a canceled call so the
// next call resumes where the previous one stopped.
type parseSession struct {
	versions []*stackVersion
	nextID   uint32

	finished     *Subtree
	finishedCost uint32
	finishedDyn  int32

	lexer    *lexer
	tokens   *tokenSourceProvider
	subtrees *subtreeArena
	leaves   *leafCache
	reuse    *reuseCursor
	oldTree  *Tree
	source   []byte
	encoding InputEncoding

	recoveriesLeft int
	skipAll        bool
	cached         cachedToken

	stats ParseStats
}

type cachedToken struct {
	valid    bool
	pos      uint32
	mode     LexMode
	extState []byte
	tok      lexedToken
}

// ParseStats summarizes the work done by the last completed parse.
type ParseStats struct {
	Tokens       int
	ReusedNodes  int
	ReusedBytes  uint32
	Recoveries   int
	MaxVersions  int
	SharedLeaves int
}

// NewParser creates a Parser with no language set.
func NewParser() *Parser {
	return &Parser{logger: zap.NewNop()}
}

// SetLanguage sets the grammar used by subsequent parses. It rejects
// grammars whose table version the runtime does not support.
func (p *Parser) SetLanguage(lang *Language) error {
	if lang == nil {
		return ErrNoLanguage
	}
	if err := lang.checkVersion(); err != nil {
		return err
	}
	if p.language != lang {
		p.Reset()
	}
	p.language = lang
	return nil
}

// Language returns the parser's grammar.
func (p *Parser) Language() *Language { return p.language }

// SetLogger routes parser debug events to logger. A nil logger disables
// logging.
func (p *Parser) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p.logger = logger
	p.debug = logger.Core().Enabled(zapcore.DebugLevel)
}

// Logger returns the parser's logger.
func (p *Parser) Logger() *zap.Logger { return p.logger }

// SetTimeout limits the wall time of each parse call. Zero disables the
// limit.
func (p *Parser) SetTimeout(d time.Duration) { p.timeout = d }

// SetTimeoutMicros limits each parse call to the given number of
// microseconds. Zero disables the limit.
func (p *Parser) SetTimeoutMicros(us uint64) { p.timeout = time.Duration(us) * time.Microsecond }

// TimeoutMicros returns the parse time limit in microseconds.
func (p *Parser) TimeoutMicros() uint64 { return uint64(p.timeout / time.Microsecond) }

// SetCancellationFlag installs a flag that stops the parse when set. The flag
// is polled once per token.
func (p *Parser) SetCancellationFlag(flag *atomic.Bool) { p.cancelFlag = flag }

// CancellationFlag returns the installed cancellation flag.
func (p *Parser) CancellationFlag() *atomic.Bool { return p.cancelFlag }

// SetIncludedRanges restricts parsing to the given ranges of the document.
// Ranges must be ordered and must not overlap; on violation the parser is
// left unchanged. An empty slice selects the whole document.
func (p *Parser) SetIncludedRanges(ranges []Range) error {
	for i := range ranges {
		if ranges[i].EndByte < ranges[i].StartByte {
			return &IncludedRangesError{Index: i, Range: ranges[i]}
		}
		if i > 0 && ranges[i].StartByte < ranges[i-1].EndByte {
			return &IncludedRangesError{Index: i, Range: ranges[i]}
		}
	}
	if len(ranges) == 0 {
		p.includedRanges = nil
		return nil
	}
	p.includedRanges = append([]Range(nil), ranges...)
	return nil
}

// IncludedRanges returns the ranges the parser is restricted to. With no
// restriction it returns a single range spanning the whole document.
func (p *Parser) IncludedRanges() []Range {
	if len(p.includedRanges) == 0 {
		return []Range{fullRange}
	}
	return append([]Range(nil), p.includedRanges...)
}

// Reset discards a parse that was stopped by cancellation or timeout, so the
// next call starts from scratch instead of resuming.
func (p *Parser) Reset() {
	p.session = nil
	if p.arena != nil {
		p.arena.Release()
		p.arena = nil
	}
}

// Stats returns statistics for the last completed parse.
func (p *Parser) Stats() ParseStats {
	if p.session != nil {
		return p.session.stats
	}
	return p.lastStats
}

// Parse parses source from scratch. It returns nil if no language is set or
// the parse is canceled.
func (p *Parser) Parse(source []byte) *Tree {
	tree, err := p.ParseString(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	return tree
}

// ParseIncremental reparses source reusing unchanged subtrees of old, which
// must have been edited to match source.
func (p *Parser) ParseIncremental(source []byte, old *Tree) *Tree {
	tree, err := p.ParseString(context.Background(), old, source)
	if err != nil {
		return nil
	}
	return tree
}

// ParseString parses an in-memory UTF-8 document and keeps it on the tree.
func (p *Parser) ParseString(ctx context.Context, old *Tree, source []byte) (*Tree, error) {
	return p.parse(ctx, old, BytesInput(source, InputEncodingUTF8), source, nil)
}

// ParseStringEncoding parses an in-memory document in the given encoding.
func (p *Parser) ParseStringEncoding(ctx context.Context, old *Tree, source []byte, encoding InputEncoding) (*Tree, error) {
	return p.parse(ctx, old, BytesInput(source, encoding), source, nil)
}

// ParseInput parses text pulled from input. If old is non-nil, unchanged
// subtrees of old are reused.
func (p *Parser) ParseInput(ctx context.Context, old *Tree, input Input) (*Tree, error) {
	return p.parse(ctx, old, input, nil, nil)
}

// ParseWithTokenSource parses source using tokens from ts instead of the
// language's lexer tables.
func (p *Parser) ParseWithTokenSource(source []byte, ts TokenSource) *Tree {
	tree, err := p.parse(context.Background(), nil, BytesInput(source, InputEncodingUTF8), source, ts)
	if err != nil {
		return nil
	}
	return tree
}

// ParseIncrementalWithTokenSource is ParseIncremental driven by ts.
func (p *Parser) ParseIncrementalWithTokenSource(source []byte, old *Tree, ts TokenSource) *Tree {
	tree, err := p.parse(context.Background(), old, BytesInput(source, InputEncodingUTF8), source, ts)
	if err != nil {
		return nil
	}
	return tree
}

// ParseTokens parses source with tokens from ts, reusing old when it is
// non-nil. Like ParseString it honors ctx, the timeout and the cancellation
// flag.
func (p *Parser) ParseTokens(ctx context.Context, old *Tree, source []byte, ts TokenSource) (*Tree, error) {
	return p.parse(ctx, old, BytesInput(source, InputEncodingUTF8), source, ts)
}

func (p *Parser) parse(ctx context.Context, old *Tree, input Input, source []byte, ts TokenSource) (*Tree, error) {
	if p.language == nil {
		return nil, ErrNoLanguage
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}

	if p.session == nil {
		if old != nil {
			if err := old.language.checkVersion(); err != nil {
				return nil, err
			}
			if old.language != p.language {
				return nil, ErrLanguageMismatch
			}
		}
		p.start(old, input, source, ts)
	} else {
		p.log("resume", zap.Int("versions", len(p.session.versions)))
		p.session.lexer.setInput(input)
		p.session.cached = cachedToken{}
		if source != nil {
			p.session.source = source
		}
	}

	if err := p.run(ctx, deadline); err != nil {
		return nil, err
	}
	if p.needsFreshParse() {
		s := p.session
		p.log("reparse", zap.Int("reused", s.stats.ReusedNodes))
		p.start(nil, input, s.source, nil)
		p.session.tokens = s.tokens
		if err := p.run(ctx, deadline); err != nil {
			return nil, err
		}
	}
	return p.finish(), nil
}

// needsFreshParse reports whether a guided parse that reused old subtrees
// ended with errors. Such a tree is replaced by a parse from scratch, so
// error trees never depend on the edit history.
func (p *Parser) needsFreshParse() bool {
	s := p.session
	if s.reuse == nil || s.stats.ReusedNodes == 0 {
		return false
	}
	if s.tokens != nil && s.tokens.skipper != nil {
		return false
	}
	return s.finished == nil || s.finished.hasError()
}

func (p *Parser) start(old *Tree, input Input, source []byte, ts TokenSource) {
	class := arenaClassFull
	if old != nil {
		class = arenaClassIncremental
	}
	if p.arena != nil {
		p.arena.Release()
	}
	p.arena = acquireStackArena(class)

	s := &parseSession{
		lexer:          newLexer(p.language),
		subtrees:       &subtreeArena{},
		leaves:         newLeafCache(),
		oldTree:        old,
		source:         source,
		encoding:       input.Encoding,
		recoveriesLeft: MaxRecoveryAttempts,
	}
	s.lexer.setInput(input)
	s.lexer.setIncludedRanges(p.includedRanges)
	if ts != nil {
		s.tokens = newTokenSourceProvider(ts)
	}
	if old != nil && old.root != nil {
		s.reuse = newReuseCursor(old)
	}
	base := p.arena.allocNode()
	base.state = p.language.InitialState
	s.versions = []*stackVersion{{id: 0, head: base}}
	s.nextID = 1
	p.session = s
	p.log("new_parse", zap.Bool("incremental", old != nil), zap.Int("included_ranges", len(p.includedRanges)))
}

func (p *Parser) log(msg string, fields ...zap.Field) {
	if p.debug {
		p.logger.Debug(msg, fields...)
	}
}

func (p *Parser) checkCancel(ctx context.Context, deadline time.Time) error {
	if p.cancelFlag != nil && p.cancelFlag.Load() {
		p.log("cancel")
		return ErrParseCanceled
	}
	select {
	case <-ctx.Done():
		p.log("cancel", zap.Error(ctx.Err()))
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %w", ErrParseTimeout, ctx.Err())
		}
		return fmt.Errorf("%w: %w", ErrParseCanceled, ctx.Err())
	default:
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		p.log("timeout")
		return ErrParseTimeout
	}
	return nil
}

func (p *Parser) newVersionID() uint32 {
	id := p.session.nextID
	p.session.nextID++
	return id
}

// run drives all stack versions in lock step until the parse finishes.
func (p *Parser) run(ctx context.Context, deadline time.Time) error {
	s := p.session
	var lastPosition uint32
	for len(s.versions) > 0 {
		for i := 0; i < len(s.versions); i++ {
			v := s.versions[i]
			for v.status == versionActive {
				if err := p.checkCancel(ctx, deadline); err != nil {
					return err
				}
				p.advance(v, len(s.versions) == 1)
				pos := v.position().Bytes
				if pos > lastPosition || (i > 0 && pos == lastPosition) {
					lastPosition = pos
					break
				}
			}
		}
		if n := len(s.versions); n > s.stats.MaxVersions {
			s.stats.MaxVersions = n
		}

		s.versions = p.condense(s.versions)
		if len(s.versions) == 0 {
			break
		}
		minCost := s.versions[0].cost()
		for _, v := range s.versions[1:] {
			if c := v.cost(); c < minCost {
				minCost = c
			}
		}
		if s.finished != nil && s.finishedCost < minCost {
			s.versions = nil
			break
		}

		hasUnpaused := false
		for _, v := range s.versions {
			if v.status != versionPaused {
				hasUnpaused = true
				continue
			}
			if hasUnpaused {
				v.status = versionHalted
				continue
			}
			p.recover(v)
			hasUnpaused = true
		}
	}
	return nil
}

// finish builds the tree from the best finished version and clears the
// session.
func (p *Parser) finish() *Tree {
	s := p.session
	p.lastStats = s.stats
	p.lastStats.SharedLeaves = s.leaves.hits
	p.session = nil
	if p.arena != nil {
		p.arena.Release()
		p.arena = nil
	}
	root := s.finished
	if root == nil {
		root = newErrorNode(s.subtrees, p.language, nil, false)
	}
	tree := newTree(root, p.language, p.includedRanges, s.source)
	tree.encoding = s.encoding
	p.log("done", zap.Uint32("error_cost", root.errorCost), zap.Int("tokens", s.stats.Tokens),
		zap.Int("reused", s.stats.ReusedNodes))
	return tree
}

// advance processes the lookahead of one version until it is shifted, the
// version accepts, or the version fails and pauses.
func (p *Parser) advance(v *stackVersion, allowReuse bool) {
	s := p.session
	lang := p.language
	state := v.state()

	var lookahead *Subtree
	if allowReuse && s.reuse != nil && !s.skipAll {
		lookahead = p.reuseNode(v)
	}
	if lookahead == nil {
		lookahead = p.lex(v)
	}

	for {
		if s.skipAll {
			p.skipRest(v, lookahead)
			return
		}
		entry := lang.lookupAction(state, lookahead.symbol)
		if entry == nil || len(entry.Actions) == 0 {
			if len(lookahead.children) > 0 {
				p.log("breakdown", zap.String("symbol", lang.SymbolName(lookahead.symbol)))
				lookahead = p.lex(v)
				continue
			}
			if p.breakdownTop(v) {
				state = v.state()
				lookahead = p.lex(v)
				continue
			}
			p.log("pause", zap.Uint32("version", v.id), zap.String("lookahead", lang.SymbolName(lookahead.symbol)),
				zap.Uint32("position", v.position().Bytes))
			v.status = versionPaused
			v.lookahead = lookahead
			return
		}

		var lastReduction *stackVersion
		for _, act := range entry.Actions {
			switch act.Type {
			case ParseActionShift:
				if act.Repetition {
					continue
				}
				next := act.State
				if act.Extra {
					next = state
				}
				p.shift(v, lookahead, next, act.Extra)
				return
			case ParseActionReduce:
				fragile := len(entry.Actions) > 1
				if nv := p.reduce(v, act, fragile); nv != nil {
					lastReduction = nv
				}
			case ParseActionAccept:
				p.accept(v)
				return
			case ParseActionRecover:
				v.status = versionPaused
				v.lookahead = lookahead
				return
			}
		}

		if lastReduction == nil {
			v.status = versionPaused
			v.lookahead = lookahead
			return
		}
		// The last reduction takes the place of the version it came from.
		v.head = lastReduction.head
		p.removeVersion(lastReduction)
		state = v.state()
	}
}

func (p *Parser) removeVersion(target *stackVersion) {
	s := p.session
	for i, v := range s.versions {
		if v == target {
			s.versions = append(s.versions[:i], s.versions[i+1:]...)
			return
		}
	}
}

// lex produces the lookahead leaf for a version, using a one-token cache
// shared by versions at the same position.
func (p *Parser) lex(v *stackVersion) *Subtree {
	s := p.session
	lang := p.language
	state := v.state()
	pos := v.position()

	var tok lexedToken
	if s.tokens != nil {
		tok = s.tokens.token(pos)
	} else {
		mode := lang.lexMode(state)
		ext := v.externalState()
		if c := &s.cached; c.valid && c.pos == pos.Bytes && c.mode == mode && externalStatesEqual(c.extState, ext) {
			tok = c.tok
		} else {
			tok = s.lexer.next(pos, state, ext)
			*c = cachedToken{valid: true, pos: pos.Bytes, mode: mode, extState: ext, tok: tok}
			s.stats.Tokens++
		}
	}

	sym := tok.symbol
	keyword := false
	if tok.keyword != 0 && lang.hasActions(state, tok.keyword) {
		sym = tok.keyword
		keyword = true
	}
	leaf := newLeaf(s.subtrees, lang, sym, tok.padding, tok.size, tok.lookaheadBytes, state)
	if keyword {
		leaf.flags |= flagKeyword
	}
	if tok.external {
		leaf.flags |= flagHasExternalTokens
		leaf.externalState = tok.externalState
	}
	if p.debug {
		p.log("lex", zap.String("symbol", lang.SymbolName(sym)), zap.Uint32("start", pos.Bytes+tok.padding.Bytes),
			zap.Uint32("size", tok.size.Bytes))
	}
	return s.leaves.intern(leaf)
}

func (p *Parser) shift(v *stackVersion, lookahead *Subtree, state StateID, extra bool) {
	if extra != lookahead.isExtra() {
		lookahead = lookahead.clone()
		lookahead.set(flagExtra, extra)
	}
	if p.debug {
		p.log("shift", zap.Uint32("version", v.id), zap.Uint16("state", uint16(state)),
			zap.String("symbol", p.language.SymbolName(lookahead.symbol)), zap.Bool("extra", extra))
	}
	p.push(v, lookahead, state)
	v.head.pending = len(lookahead.children) > 0
}

// reduce pops the children of a production and pushes the new node on a
// forked version, which it returns. Extras at the end of the popped run are
// pushed back after the node.
func (p *Parser) reduce(v *stackVersion, act ParseAction, fragile bool) *stackVersion {
	s := p.session
	lang := p.language

	popped, base := popCount(v.head, int(act.ChildCount))
	nonExtra := 0
	for _, t := range popped {
		if !t.isExtra() {
			nonExtra++
		}
	}
	if nonExtra < int(act.ChildCount) {
		return nil
	}
	end := len(popped)
	for end > 0 && popped[end-1].isExtra() {
		end--
	}
	children := make([]*Subtree, end)
	copy(children, popped[:end])
	trailing := popped[end:]

	next, ok := lang.nextState(base.state, act.Symbol)
	if !ok {
		return nil
	}

	node := newNode(s.subtrees, lang, act.Symbol, children, act.ProductionID)
	node.dynamicPrecedence += int32(act.DynamicPrecedence)
	node.parseState = base.state
	if fragile || len(s.versions) > 1 {
		node.flags |= flagFragileLeft | flagFragileRight
	}

	nv := v.fork(p.newVersionID())
	nv.head = base
	p.push(nv, node, next)
	for _, t := range trailing {
		p.push(nv, t, next)
	}
	s.versions = append(s.versions, nv)
	if p.debug {
		p.log("reduce", zap.Uint32("version", nv.id), zap.String("symbol", lang.SymbolName(act.Symbol)),
			zap.Uint8("child_count", act.ChildCount), zap.Uint16("state", uint16(next)))
	}
	return nv
}

// accept finishes a version: the single non-extra subtree on the stack
// becomes the root, adopting the surrounding extras as children.
func (p *Parser) accept(v *stackVersion) {
	s := p.session
	lang := p.language
	v.status = versionHalted

	subtrees := popAll(v.head)
	var root *Subtree
	for j := len(subtrees) - 1; j >= 0; j-- {
		t := subtrees[j]
		if t.isExtra() {
			continue
		}
		children := make([]*Subtree, 0, len(subtrees)-1+len(t.children))
		children = append(children, subtrees[:j]...)
		children = append(children, t.children...)
		children = append(children, subtrees[j+1:]...)
		root = newNode(s.subtrees, lang, t.symbol, children, t.productionID)
		root.dynamicPrecedence = t.dynamicPrecedence
		root.parseState = t.parseState
		if atomic.LoadInt32(&t.refs) == 0 {
			for _, c := range t.children {
				atomic.AddInt32(&c.refs, -1)
			}
		}
		break
	}
	if root == nil {
		root = newErrorNode(s.subtrees, lang, subtrees, false)
	}
	p.finishVersion(v, root)
}

func (p *Parser) finishVersion(v *stackVersion, root *Subtree) {
	s := p.session
	cost := root.errorCost
	better := s.finished == nil || cost < s.finishedCost ||
		(cost == s.finishedCost && root.dynamicPrecedence > s.finishedDyn)
	p.log("accept", zap.Uint32("version", v.id), zap.Uint32("error_cost", cost), zap.Bool("selected", better))
	if better {
		s.finished = root
		s.finishedCost = cost
		s.finishedDyn = root.dynamicPrecedence
	}
}
