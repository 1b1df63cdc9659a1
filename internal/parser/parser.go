package parser

import (
	"fmt"
	"strconv"
	"strings"

	"tigerra/internal/ir"
	"tigerra/internal/lexer"
)

// DefaultWordSize is the argument slot size used by Parse.
const DefaultWordSize = 4

// ---------------------------------------------------------------------------
// ParseError
// ---------------------------------------------------------------------------

// ParseError represents a single error found during parsing.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s", e.Line, e.Column, e.Message)
}

// SourceError collects every lex and parse error of one listing.
type SourceError struct {
	Lex   []lexer.LexError
	Parse []ParseError
}

func (e *SourceError) Error() string {
	var msgs []string
	for _, le := range e.Lex {
		msgs = append(msgs, le.Error())
	}
	for _, pe := range e.Parse {
		msgs = append(msgs, pe.Error())
	}
	return strings.Join(msgs, "; ")
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser holds the state for a single parse pass over a token stream.
type Parser struct {
	tokens   []lexer.Token
	pos      int
	errors   []ParseError
	wordSize int

	listing *ir.Listing
	funcs   map[string]*ir.Symbol // every function symbol, defined or external

	// Per-function scope.
	fn     *ir.Func
	vars   map[string]*ir.Symbol
	labels map[string]*ir.Symbol
	consts map[string]*ir.Symbol
}

// Parse is the main entry point. It takes a token slice (as produced by
// lexer.Lex) and returns the listing plus any parse errors collected.
// Arguments get DefaultWordSize frame slots.
func Parse(tokens []lexer.Token) (*ir.Listing, []ParseError) {
	return ParseWordSize(tokens, DefaultWordSize)
}

// ParseWordSize is Parse with an explicit argument slot size.
func ParseWordSize(tokens []lexer.Token, wordSize int) (*ir.Listing, []ParseError) {
	p := &Parser{
		tokens:   tokens,
		wordSize: wordSize,
		listing:  &ir.Listing{},
		funcs:    make(map[string]*ir.Symbol),
	}
	p.declareFunctions()
	p.parseListing()
	return p.listing, p.errors
}

// ParseSource lexes and parses src in one go.
func ParseSource(src string, wordSize int) (*ir.Listing, error) {
	tokens, lexErrs := lexer.Lex(src)
	if len(lexErrs) > 0 {
		return nil, &SourceError{Lex: lexErrs}
	}
	listing, parseErrs := ParseWordSize(tokens, wordSize)
	if len(parseErrs) > 0 {
		return nil, &SourceError{Parse: parseErrs}
	}
	return listing, nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) peek() lexer.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return lexer.Token{Type: lexer.EOF}
}

func (p *Parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= 0 && idx < len(p.tokens) {
		return p.tokens[idx]
	}
	return lexer.Token{Type: lexer.EOF}
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if tok.Type != lexer.EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) check(typ string) bool {
	return p.peek().Type == typ
}

func (p *Parser) match(types ...string) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

// expect consumes the current token if it matches typ; otherwise it records
// an error and returns the current token WITHOUT advancing.
func (p *Parser) expect(typ string, msg string) (lexer.Token, bool) {
	if p.check(typ) {
		return p.advance(), true
	}
	tok := p.peek()
	p.addError(tok, fmt.Sprintf("%s (got %s %q)", msg, tok.Type, tok.Value))
	return tok, false
}

func (p *Parser) addError(tok lexer.Token, msg string) {
	p.errors = append(p.errors, ParseError{
		Message: msg,
		Line:    tok.Line,
		Column:  tok.Column,
	})
}

// synchronize skips to the start of the next line.
func (p *Parser) synchronize() {
	for !p.check(lexer.EOF) && !p.check(lexer.NEWLINE) {
		p.advance()
	}
	p.match(lexer.NEWLINE)
}

func (p *Parser) skipNewlines() {
	for p.match(lexer.NEWLINE) {
	}
}

// ---------------------------------------------------------------------------
// Listing / function structure
// ---------------------------------------------------------------------------

// declareFunctions creates a symbol for every defined function up front so
// calls may refer to functions defined later in the listing.
func (p *Parser) declareFunctions() {
	for i := 0; i+1 < len(p.tokens); i++ {
		if p.tokens[i].Type == lexer.FUNC && p.tokens[i+1].Type == lexer.IDENT {
			name := p.tokens[i+1].Value
			if _, ok := p.funcs[name]; !ok {
				p.funcs[name] = p.listing.NewSymbol(name, ir.ClassFunc, ir.TypeVoid)
			}
		}
	}
}

func (p *Parser) parseListing() {
	p.skipNewlines()
	for !p.check(lexer.EOF) {
		if !p.check(lexer.FUNC) {
			tok := p.peek()
			p.addError(tok, fmt.Sprintf("expected 'func' (got %s %q)", tok.Type, tok.Value))
			p.synchronize()
			p.skipNewlines()
			continue
		}
		p.parseFunction()
		p.skipNewlines()
	}
}

func (p *Parser) parseFunction() {
	p.advance() // func
	nameTok, ok := p.expect(lexer.IDENT, "expected function name")
	if !ok {
		p.synchronize()
		return
	}
	sym := p.funcs[nameTok.Value]
	if sym.Func != nil {
		p.addError(nameTok, fmt.Sprintf("function %q defined twice", nameTok.Value))
	}
	fn, err := p.listing.NewFunc(sym)
	if err != nil {
		p.addError(nameTok, err.Error())
		p.synchronize()
		return
	}
	p.fn = fn
	p.vars = make(map[string]*ir.Symbol)
	p.labels = make(map[string]*ir.Symbol)
	p.consts = make(map[string]*ir.Symbol)

	if _, ok := p.expect(lexer.LPAREN, "expected '(' after function name"); ok {
		p.parseParams()
	}
	if p.match(lexer.COLON) {
		if t := p.parseType(); t != nil {
			sym.Type = t
		}
	}
	if _, ok := p.expect(lexer.LBRACE, "expected '{' to open function body"); !ok {
		p.synchronize()
	}
	p.skipNewlines()

	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		p.parseLine()
		p.skipNewlines()
	}
	p.expect(lexer.RBRACE, "expected '}' to close function body")
	p.fn = nil
}

func (p *Parser) parseParams() {
	if p.match(lexer.RPAREN) {
		return
	}
	for {
		tok, ok := p.expect(lexer.IDENT, "expected parameter name")
		if !ok {
			return
		}
		typ := ir.TypeInt
		if p.match(lexer.COLON) {
			if t := p.parseType(); t != nil {
				typ = t
			}
		}
		if _, dup := p.vars[tok.Value]; dup {
			p.addError(tok, fmt.Sprintf("parameter %q declared twice", tok.Value))
		} else {
			p.vars[tok.Value] = p.listing.NewParam(p.fn, tok.Value, typ, p.wordSize)
		}
		if !p.match(lexer.COMMA) {
			break
		}
	}
	p.expect(lexer.RPAREN, "expected ')' after parameters")
}

// parseType parses `name` or `name[len]`.
func (p *Parser) parseType() *ir.Type {
	tok, ok := p.expect(lexer.IDENT, "expected type name")
	if !ok {
		return nil
	}
	t := ir.LookupType(tok.Value)
	if t == nil {
		p.addError(tok, fmt.Sprintf("unknown type %q", tok.Value))
		return nil
	}
	if p.match(lexer.LBRACKET) {
		lenTok, ok := p.expect(lexer.INT, "expected array length")
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(lenTok.Value, 0, 64)
		if err != nil || n <= 0 {
			p.addError(lenTok, fmt.Sprintf("invalid array length %q", lenTok.Value))
			return nil
		}
		p.expect(lexer.RBRACKET, "expected ']' after array length")
		t = ir.ArrayOf(t, int(n))
	}
	return t
}

// ---------------------------------------------------------------------------
// Lines: declarations, labels, instructions
// ---------------------------------------------------------------------------

func (p *Parser) parseLine() {
	var ok bool
	switch {
	case p.check(lexer.VAR):
		ok = p.parseVarDecl()
	case p.check(lexer.IDENT) && p.peekAt(1).Type == lexer.COLON:
		ok = p.parseLabel()
	case p.check(lexer.IDENT):
		ok = p.parseInstr()
	default:
		tok := p.peek()
		p.addError(tok, fmt.Sprintf("expected instruction, label or declaration (got %s %q)", tok.Type, tok.Value))
	}
	if !ok {
		p.synchronize()
		return
	}
	if !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		if _, ok := p.expect(lexer.NEWLINE, "expected end of line"); !ok {
			p.synchronize()
		}
	}
}

func (p *Parser) parseVarDecl() bool {
	p.advance() // var
	var names []lexer.Token
	for {
		tok, ok := p.expect(lexer.IDENT, "expected variable name")
		if !ok {
			return false
		}
		names = append(names, tok)
		if !p.match(lexer.COMMA) {
			break
		}
	}
	typ := ir.TypeInt
	if p.match(lexer.COLON) {
		t := p.parseType()
		if t == nil {
			return false
		}
		typ = t
	}
	for _, tok := range names {
		if _, dup := p.vars[tok.Value]; dup {
			p.addError(tok, fmt.Sprintf("variable %q declared twice", tok.Value))
			continue
		}
		p.vars[tok.Value] = p.listing.NewLocal(p.fn, tok.Value, typ)
	}
	return true
}

func (p *Parser) parseLabel() bool {
	tok := p.advance()
	p.advance() // :
	insn, err := p.fn.EmitLabel(p.label(tok.Value))
	if err != nil {
		p.addError(tok, err.Error())
		return false
	}
	insn.Line = tok.Line
	return true
}

func (p *Parser) parseInstr() bool {
	opTok := p.advance()
	op, ok := ir.LookupOpcode(opTok.Value)
	if !ok {
		p.addError(opTok, fmt.Sprintf("unknown opcode %q", opTok.Value))
		return false
	}

	var operands []*ir.Symbol
	if !p.check(lexer.NEWLINE) && !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		for {
			sym := p.parseOperand(op, len(operands))
			if sym == nil {
				return false
			}
			operands = append(operands, sym)
			if !p.match(lexer.COMMA) {
				break
			}
		}
	}

	insn, err := p.fn.Emit(op, operands...)
	if err != nil {
		p.addError(opTok, err.Error())
		return false
	}
	insn.Line = opTok.Line
	return true
}

// parseOperand resolves the operand at position k of an op instruction.
// Branch targets become labels, a call's second operand is a function, and
// every other identifier is a variable of the current function.
func (p *Parser) parseOperand(op ir.Opcode, k int) *ir.Symbol {
	neg := p.match(lexer.MINUS)
	tok := p.peek()
	switch tok.Type {
	case lexer.INT, lexer.FLOAT, lexer.IDENT:
		p.advance()
	default:
		p.addError(tok, fmt.Sprintf("expected operand (got %s %q)", tok.Type, tok.Value))
		return nil
	}
	switch tok.Type {
	case lexer.INT:
		v, err := strconv.ParseInt(tok.Value, 0, 64)
		if err != nil {
			p.addError(tok, fmt.Sprintf("invalid integer %q", tok.Value))
			return nil
		}
		if neg {
			v = -v
		}
		return p.intConst(v)
	case lexer.FLOAT:
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.addError(tok, fmt.Sprintf("invalid float %q", tok.Value))
			return nil
		}
		if neg {
			v = -v
		}
		return p.floatConst(v)
	case lexer.IDENT:
		if neg {
			p.addError(tok, "'-' only applies to numeric literals")
			return nil
		}
		switch {
		case isLabelOperand(op, k):
			return p.label(tok.Value)
		case op == ir.OpCall && k == 1:
			return p.function(tok.Value)
		}
	}
	return p.variable(tok.Value)
}

func isLabelOperand(op ir.Opcode, k int) bool {
	return (op == ir.OpGoto && k == 0) || (op.IsCondBranch() && k == 2)
}

// ---------------------------------------------------------------------------
// Symbol resolution
// ---------------------------------------------------------------------------

func (p *Parser) label(name string) *ir.Symbol {
	if s, ok := p.labels[name]; ok {
		return s
	}
	s := p.listing.NewSymbol(name, ir.ClassLabel, nil)
	s.Owner = p.fn.Symbol
	p.labels[name] = s
	return s
}

func (p *Parser) function(name string) *ir.Symbol {
	if s, ok := p.funcs[name]; ok {
		return s
	}
	s := p.listing.NewSymbol(name, ir.ClassFunc, ir.TypeVoid)
	p.funcs[name] = s
	return s
}

// variable resolves name in the current function, declaring an int local on
// first sight.
func (p *Parser) variable(name string) *ir.Symbol {
	if s, ok := p.vars[name]; ok {
		return s
	}
	s := p.listing.NewLocal(p.fn, name, ir.TypeInt)
	p.vars[name] = s
	return s
}

func (p *Parser) intConst(v int64) *ir.Symbol {
	key := "i" + strconv.FormatInt(v, 10)
	if s, ok := p.consts[key]; ok {
		return s
	}
	s := p.listing.NewSymbol(strconv.FormatInt(v, 10), ir.ClassIntConst, ir.TypeInt)
	s.IntVal = v
	p.consts[key] = s
	return s
}

func (p *Parser) floatConst(v float64) *ir.Symbol {
	text := strconv.FormatFloat(v, 'g', -1, 64)
	key := "f" + text
	if s, ok := p.consts[key]; ok {
		return s
	}
	s := p.listing.NewSymbol(text, ir.ClassFloatConst, ir.TypeFloat)
	s.FloatVal = v
	p.consts[key] = s
	return s
}
