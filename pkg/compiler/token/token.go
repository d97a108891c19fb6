package token

import "fmt"

type TokenType string

type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

const (
	// NONE is returned when nothing is available for the caller: end of
	// input, or a ';' the caller did not ask for.
	NONE    = "NONE"
	INVALID = "INVALID"

	COLON     = ":"
	SEMICOLON = ";"

	SYMBOL = "SYMBOL" // in, r0, health, my_label
	NUMBER = "NUMBER" // 12, -3, 0x1F
)

func (t Token) String() string {
	switch t.Type {
	case NONE:
		return "end of statement"
	case COLON, SEMICOLON:
		return fmt.Sprintf("'%s'", t.Type)
	}
	return fmt.Sprintf("%s %q", t.Type, t.Literal)
}

// IsArgument reports whether the token can stand in an argument position.
func (t Token) IsArgument() bool {
	return t.Type == SYMBOL || t.Type == NUMBER
}
