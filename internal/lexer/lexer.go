package lexer

import "fmt"

const (
	// Special
	EOF     = "EOF"
	ILLEGAL = "ILLEGAL"
	NEWLINE = "NEWLINE"

	// Literals
	IDENT = "IDENT" // identifiers: fib, t0, loop_end, …
	INT   = "INT"   // integer literals: 0, 42, 0xFF, …
	FLOAT = "FLOAT" // float literals: 3.14, 0.5, 1.0e10, …

	// Keywords
	FUNC = "FUNC"
	VAR  = "VAR"

	// Delimiters
	LPAREN   = "LPAREN"   // (
	RPAREN   = "RPAREN"   // )
	LBRACE   = "LBRACE"   // {
	RBRACE   = "RBRACE"   // }
	LBRACKET = "LBRACKET" // [
	RBRACKET = "RBRACKET" // ]
	COLON    = "COLON"    // :
	COMMA    = "COMMA"    // ,
	MINUS    = "MINUS"    // -
)

// keywords maps reserved words to their token types. Opcode mnemonics are
// plain identifiers; the parser decides by position.
var keywords = map[string]string{
	"func": FUNC,
	"var":  VAR,
}

// Token represents a single lexical token produced by the lexer.
type Token struct {
	Type   string
	Value  string
	Line   int
	Column int
}

// LexError represents a recoverable error encountered during lexing.
type LexError struct {
	Message string
	Lexeme  string
	Line    int
	Column  int
}

func (e LexError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s (got %q)", e.Line, e.Column, e.Message, e.Lexeme)
}

// Lex splits an IR listing into tokens. Line breaks are significant and
// come out as NEWLINE tokens (runs of blank lines collapse into one).
// Unknown characters are reported and skipped.
func Lex(input string) ([]Token, []LexError) {
	var tokens []Token
	var errors []LexError
	line, col, i := 1, 1, 0

	newline := func() {
		if len(tokens) > 0 && tokens[len(tokens)-1].Type != NEWLINE {
			tokens = append(tokens, Token{NEWLINE, "\n", line, col})
		}
	}

	for i < len(input) {
		ch := input[i]
		if ch == '\n' {
			newline()
			line++
			col = 1
			i++
			continue
		}
		if isWhitespace(ch) {
			if ch != '\r' {
				col++
			}
			i++
			continue
		}

		// Comments run to the end of the line: # … or // …
		if ch == '#' || (ch == '/' && i+1 < len(input) && input[i+1] == '/') {
			i, col = skipLineComment(input, i, col)
			continue
		}

		if isDigit(ch) {
			tok, newI, newCol := lexNumber(input, i, line, col)
			tokens = append(tokens, tok)
			i, col = newI, newCol
			continue
		}

		if isIdentStart(ch) {
			tok, newI, newCol := lexIdentifier(input, i, line, col)
			tokens = append(tokens, tok)
			i, col = newI, newCol
			continue
		}

		if tok, ok := lexDelimiter(ch, line, col); ok {
			tokens = append(tokens, tok)
			i++
			col++
			continue
		}

		errors = append(errors, LexError{
			Message: "unexpected character",
			Lexeme:  string(ch),
			Line:    line,
			Column:  col,
		})
		i++
		col++
	}

	newline()
	tokens = append(tokens, Token{EOF, "", line, col})
	return tokens, errors
}

func skipLineComment(input string, i int, col int) (int, int) {
	for i < len(input) && input[i] != '\n' {
		i++
		col++
	}
	return i, col
}

// lexNumber scans an integer or float literal.
// Supports: decimal (42), hexadecimal (0xFF), float (3.14), and
// scientific notation (1.5e10, 2.0E-3).
func lexNumber(input string, start int, line int, col int) (Token, int, int) {
	i := start
	startCol := col
	isFloat := false

	// Hexadecimal: 0x… / 0X…
	if input[i] == '0' && i+1 < len(input) && (input[i+1] == 'x' || input[i+1] == 'X') {
		i += 2
		col += 2
		for i < len(input) && isHexDigit(input[i]) {
			i++
			col++
		}
		return Token{INT, input[start:i], line, startCol}, i, col
	}

	for i < len(input) && isDigit(input[i]) {
		i++
		col++
	}

	if i < len(input) && input[i] == '.' && i+1 < len(input) && isDigit(input[i+1]) {
		isFloat = true
		i++ // consume '.'
		col++
		for i < len(input) && isDigit(input[i]) {
			i++
			col++
		}
	}

	if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
		isFloat = true
		i++ // consume 'e'
		col++
		if i < len(input) && (input[i] == '+' || input[i] == '-') {
			i++
			col++
		}
		for i < len(input) && isDigit(input[i]) {
			i++
			col++
		}
	}

	tokType := INT
	if isFloat {
		tokType = FLOAT
	}
	return Token{tokType, input[start:i], line, startCol}, i, col
}

func lexIdentifier(input string, start int, line int, col int) (Token, int, int) {
	i := start
	startCol := col
	for i < len(input) && isIdentPart(input[i]) {
		i++
		col++
	}
	word := input[start:i]
	tokType := IDENT
	if kw, ok := keywords[word]; ok {
		tokType = kw
	}
	return Token{tokType, word, line, startCol}, i, col
}

func lexDelimiter(ch byte, line int, col int) (Token, bool) {
	switch ch {
	case '(':
		return Token{LPAREN, "(", line, col}, true
	case ')':
		return Token{RPAREN, ")", line, col}, true
	case '{':
		return Token{LBRACE, "{", line, col}, true
	case '}':
		return Token{RBRACE, "}", line, col}, true
	case '[':
		return Token{LBRACKET, "[", line, col}, true
	case ']':
		return Token{RBRACKET, "]", line, col}, true
	case ':':
		return Token{COLON, ":", line, col}, true
	case ',':
		return Token{COMMA, ",", line, col}, true
	case '-':
		return Token{MINUS, "-", line, col}, true
	}
	return Token{}, false
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentStart(ch byte) bool {
	return isLetter(ch) || ch == '_' || ch == '$'
}

func isIdentPart(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '$' || ch == '.'
}
