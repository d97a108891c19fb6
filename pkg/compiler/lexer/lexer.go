package lexer

import (
	"github.com/zurustar/palscript/pkg/compiler/token"
)

// character classes
const (
	classOther = iota
	classSpace // whitespace and '#'
	classSpec  // ':' and ';'
	classSign
	classDigit
	classHex  // a-f, A-F
	classRest // other letters, '_', '.'
)

var classes = func() [256]uint8 {
	var c [256]uint8
	for i := 0; i < 256; i++ {
		ch := byte(i)
		switch {
		case ch == '#' || ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\v' || ch == '\f':
			c[i] = classSpace
		case ch == ':' || ch == ';':
			c[i] = classSpec
		case ch == '+' || ch == '-':
			c[i] = classSign
		case ch >= '0' && ch <= '9':
			c[i] = classDigit
		case (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F'):
			c[i] = classHex
		case (ch >= 'g' && ch <= 'z') || (ch >= 'G' && ch <= 'Z') || ch == '_' || ch == '.':
			c[i] = classRest
		}
	}
	return c
}()

// Lexer tokenizes palette script source.
type Lexer struct {
	input        string
	position     int  // current position in input
	readPosition int  // current reading position (after current char)
	ch           byte // current char
	line         int  // current line number
	column       int  // current column number
}

// New creates a new Lexer.
func New(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// GetSource returns the full input.
func (l *Lexer) GetSource() string {
	return l.input
}

// More skips whitespace and comments and reports whether any input is left.
func (l *Lexer) More() bool {
	l.skipWhitespace()
	return !l.atEnd()
}

// NextToken returns the next token. expect names the structural token the
// caller is prepared to accept: a ':' is only a COLON when expect is
// token.COLON, and a ';' is only consumed when expect is token.SEMICOLON.
// Otherwise ';' yields NONE and stays in the input.
func (l *Lexer) NextToken(expect token.TokenType) token.Token {
	l.skipWhitespace()

	tok := token.Token{Type: token.NONE, Line: l.line, Column: l.column}
	if l.atEnd() {
		return tok
	}

	switch classes[l.ch] {
	case classSpec:
		if l.ch == ';' {
			if expect != token.SEMICOLON {
				return tok
			}
			tok.Type = token.SEMICOLON
		} else if expect == token.COLON {
			tok.Type = token.COLON
		} else {
			tok.Type = token.INVALID
		}
		tok.Literal = string(l.ch)
		l.readChar()
		return tok
	case classSign, classDigit:
		start := l.position
		tok.Type = l.readNumber()
		tok.Literal = l.input[start:l.position]
	case classHex, classRest:
		start := l.position
		tok.Type = l.readSymbol()
		tok.Literal = l.input[start:l.position]
	default:
		start := l.position
		l.skipToDelimiter()
		tok.Type = token.INVALID
		tok.Literal = l.input[start:l.position]
	}
	return tok
}

func (l *Lexer) readNumber() token.TokenType {
	if classes[l.ch] == classSign {
		l.readChar()
	}
	digits := 0
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
			digits++
		}
	} else {
		for isDigit(l.ch) {
			l.readChar()
			digits++
		}
	}
	if digits == 0 || !l.atDelimiter() {
		l.skipToDelimiter()
		return token.INVALID
	}
	return token.NUMBER
}

func (l *Lexer) readSymbol() token.TokenType {
	for isSymbolChar(l.ch) {
		l.readChar()
	}
	if !l.atDelimiter() {
		l.skipToDelimiter()
		return token.INVALID
	}
	return token.SYMBOL
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	if l.position < len(l.input) && l.readPosition > 0 && l.input[l.position] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

func (l *Lexer) atDelimiter() bool {
	if l.atEnd() {
		return true
	}
	c := classes[l.ch]
	return c == classSpace || c == classSpec
}

func (l *Lexer) skipToDelimiter() {
	for !l.atDelimiter() {
		l.readChar()
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch {
		case l.ch == '#':
			for !l.atEnd() && l.ch != '\n' {
				l.readChar()
			}
		case classes[l.ch] == classSpace:
			l.readChar()
		default:
			return
		}
	}
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || classes[ch] == classHex
}

func isSymbolChar(ch byte) bool {
	c := classes[ch]
	return c == classDigit || c == classHex || c == classRest
}
