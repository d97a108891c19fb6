package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zurustar/palscript/pkg/compiler/lexer"
	"github.com/zurustar/palscript/pkg/opcode"
)

type mapResolver map[string]Symbol

func (m mapResolver) Resolve(name string) (Symbol, bool) {
	s, ok := m[name]
	return s, ok
}

var testNames = mapResolver{
	"health":    {Kind: SymbolFunction, Value: 0},
	"armor":     {Kind: SymbolFunction, Value: 1},
	"team_blue": {Kind: SymbolConst, Value: 0x90},
	"blit_part": {Kind: SymbolCustom, Value: 1},
}

func parse(t *testing.T, src string) (*Output, error) {
	t.Helper()
	return New(lexer.New(src), testNames).Parse()
}

func findRef(out *Output, name string) (Ref, bool) {
	for _, r := range out.Refs {
		if r.Name == name {
			return r, true
		}
	}
	return Ref{}, false
}

func TestParse_Code(t *testing.T) {
	out, err := parse(t, "set r0 5; add r0 3; ret r0;")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := []byte{
		byte(opcode.Set), opcode.RegR0, opcode.RegFixed,
		byte(opcode.Add), opcode.RegR0, opcode.RegFixed + 1,
		byte(opcode.Ret), opcode.RegR0,
		byte(opcode.Exit),
	}
	if string(out.Code) != string(want) {
		t.Errorf("code = %v, want %v", out.Code, want)
	}
	if len(out.Refs) != 2 {
		t.Fatalf("refs = %+v", out.Refs)
	}
	if out.Refs[0] != (Ref{Name: "5", Kind: RefConst, Slot: opcode.RegFixed, Value: 5}) {
		t.Errorf("refs[0] = %+v", out.Refs[0])
	}
}

func TestParse_ExplicitResult(t *testing.T) {
	a, err := parse(t, "set r0 5 ; add r0 3 ; ret result r0 ;")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	b, err := parse(t, "set r0 5 ; add r0 3 ; ret r0 ;")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if string(a.Code) != string(b.Code) {
		t.Errorf("'ret result r0' = %v, 'ret r0' = %v", a.Code, b.Code)
	}
}

func TestParse_ConstCanonicalization(t *testing.T) {
	out, err := parse(t, "set r0 5; add r0 0x5; add r0 +5; sub r0 -0x10; sub r0 -16;")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(out.Refs) != 2 {
		t.Fatalf("refs = %+v, want two constants", out.Refs)
	}
	if r, ok := findRef(out, "-16"); !ok || r.Value != -16 {
		t.Errorf("missing canonical -16: %+v", out.Refs)
	}
	// every 5 uses the same slot
	if out.Code[2] != out.Code[5] || out.Code[5] != out.Code[8] {
		t.Errorf("literal 5 mapped to different slots: %v", out.Code)
	}
}

func TestParse_ForwardLabel(t *testing.T) {
	out, err := parse(t, `
		skip done;
		set in 0;
		done: ret in;
	`)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	r, ok := findRef(out, "done")
	if !ok || r.Kind != RefLabel {
		t.Fatalf("label not found: %+v", out.Refs)
	}
	// skip(2 bytes) + set(3 bytes)
	if r.Value != 5 {
		t.Errorf("label offset = %d, want 5", r.Value)
	}
	if out.Code[r.Value] != byte(opcode.Ret) {
		t.Errorf("label points at %v, want ret", opcode.Op(out.Code[r.Value]))
	}
}

func TestParse_BackwardLabel(t *testing.T) {
	out, err := parse(t, "top: add r0 1; test r0 3; skip_lt top; ret r0;")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	r, _ := findRef(out, "top")
	if r.Value != 0 {
		t.Errorf("label offset = %d, want 0", r.Value)
	}
}

func TestParse_Names(t *testing.T) {
	out, err := parse(t, "set r0 health; add r0 team_blue; add r0 blit_part; add r0 health; ret r0;")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	hp, _ := findRef(out, "health")
	if hp.Kind != RefData || hp.Value != 0 {
		t.Errorf("health = %+v", hp)
	}
	c, _ := findRef(out, "team_blue")
	if c.Kind != RefConst || c.Value != 0x90 {
		t.Errorf("team_blue = %+v", c)
	}
	cr, _ := findRef(out, "blit_part")
	if cr.Kind != RefReg || cr.Slot != opcode.RegCustom0+1 {
		t.Errorf("blit_part = %+v", cr)
	}
	// custom registers do not take program slots
	if len(out.Refs) != 3 || out.Refs[0].Kind != RefReg {
		t.Errorf("refs = %+v", out.Refs)
	}
}

func TestParse_ReferenceLimit(t *testing.T) {
	build := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "add r0 %d;\n", i+100)
		}
		sb.WriteString("ret r0;")
		return sb.String()
	}

	if _, err := parse(t, build(opcode.MaxReferences)); err != nil {
		t.Errorf("%d references should compile: %v", opcode.MaxReferences, err)
	}
	_, err := parse(t, build(opcode.MaxReferences+1))
	if !errors.Is(err, ErrTooManyReferences) {
		t.Errorf("err = %v, want ErrTooManyReferences", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     error
		line     int
		lineText string
	}{
		{"empty", "", ErrEmptySource, 1, ""},
		{"unknown op", "set r0 1;\njump r0;", ErrUnknownOperation, 2, "jump r0;"},
		{"duplicate label", "a: exit;\na: exit;", ErrDuplicateLabel, 2, "a: exit;"},
		{"undeclared label", "skip nowhere;\nexit;", ErrUndeclaredLabel, 1, "skip nowhere;"},
		{"missing semicolon", "set r0 1", ErrSyntax, 1, "set r0 1"},
		{"too many args", "add r0 1 2;", ErrArgumentCount, 1, "add r0 1 2;"},
		{"too few args", "add r0;", ErrArgumentCount, 1, "add r0;"},
		{"fifth token", "muladdmod r0 1 2 3 4;", ErrArgumentCount, 1, "muladdmod r0 1 2 3 4;"},
		{"bad register", "set health 1;", ErrInvalidArgument, 1, "set health 1;"},
		{"unknown name", "set r0 mana;", ErrInvalidArgument, 1, "set r0 mana;"},
		{"label as data", "l: set r0 l;", ErrInvalidArgument, 1, "l: set r0 l;"},
		{"number as label", "skip 5;", ErrInvalidArgument, 1, "skip 5;"},
		{"register as label", "r0: exit;", ErrInvalidLabel, 1, "r0: exit;"},
		{"host name as label", "health: exit;", ErrInvalidLabel, 1, "health: exit;"},
		{"data name used as label", "set r0 health; skip health;", ErrInvalidArgument, 1, "set r0 health; skip health;"},
		{"invalid token", "set r0 $;", ErrSyntax, 1, "set r0 $;"},
		{"stray colon", "set r0: 1;", ErrSyntax, 1, "set r0: 1;"},
		{"out of range", "set r0 99999999999;", ErrInvalidArgument, 1, "set r0 99999999999;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parse(t, tt.input)
			if err == nil {
				t.Fatalf("expected error, got program %v", out.Code)
			}
			if out != nil {
				t.Error("failed parse must not return a program")
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
			var pe *ParserError
			if !errors.As(err, &pe) {
				t.Fatalf("err is %T, want *ParserError", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d", pe.Line, tt.line)
			}
			if pe.LineText != tt.lineText {
				t.Errorf("line text = %q, want %q", pe.LineText, tt.lineText)
			}
		})
	}
}

func TestParse_CommentsOnly(t *testing.T) {
	out, err := parse(t, "# nothing to do\n")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(out.Code) != 1 || out.Code[0] != byte(opcode.Exit) {
		t.Errorf("code = %v, want [exit]", out.Code)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"42", 42, false},
		{"+42", 42, false},
		{"-42", -42, false},
		{"0x1F", 31, false},
		{"-0x13", -19, false},
		{"0xFFFFFFFF", -1, false},
		{"0x80000000", -2147483648, false},
		{"-0x80000000", -2147483648, false},
		{"-0x7FFFFFFF", -2147483647, false},
		{"0x100000000", 0, true},
		{"2147483647", 2147483647, false},
		{"-2147483648", -2147483648, false},
		{"2147483648", 0, true},
		{"12a", 0, true},
		{"0b101", 0, true},
		{"0o17", 0, true},
		{"1_000", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNumber(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
