package mod

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/script"
	"github.com/zurustar/palscript/pkg/unit"
	"github.com/zurustar/palscript/pkg/vm"
)

const demo = `
name: demo
constants:
  team_color: 0x9
  dim: 2
recolors:
  - name: armor
    script: scripts/armor.pal
    sprite: sprites/unit.bmp
  - name: inline
    code: "set_color in team_color ; ret in ;"
`

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(data), 0644))
	}
	return fsys
}

func TestLoad(t *testing.T) {
	fsys := newFs(t, map[string]string{"/mods/Demo/Rules.yaml": demo})

	rs, err := Load(fsys, "/mods/demo/rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, "demo", rs.Name)
	assert.Equal(t, "/mods/Demo", rs.Dir)
	assert.Equal(t, map[string]int{"team_color": 9, "dim": 2}, rs.Constants)
	require.Len(t, rs.Recolors, 2)

	r, ok := rs.Rule("armor")
	require.True(t, ok)
	assert.Equal(t, "scripts/armor.pal", r.Script)
	assert.Equal(t, "/mods/Demo/sprites/unit.bmp", rs.SpritePath(r))

	inline, _ := rs.Rule("inline")
	assert.Equal(t, "", rs.SpritePath(inline))

	_, ok = rs.Rule("missing")
	assert.False(t, ok)

	_, err = Load(fsys, "/mods/none.yaml")
	assert.Error(t, err)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		issues []string
	}{
		{"no name", "recolors: [{name: a, code: 'exit;'}]", []string{"name must be provided"}},
		{"no rules", "name: x", []string{"at least one recolor rule"}},
		{"duplicate rule", "name: x\nrecolors: [{name: a, code: 'exit;'}, {name: a, code: 'exit;'}]", []string{`duplicate name "a"`}},
		{"both sources", "name: x\nrecolors: [{name: a, code: 'exit;', script: a.pal}]", []string{"exactly one of script or code"}},
		{"no source", "name: x\nrecolors: [{name: a}]", []string{"exactly one of script or code"}},
		{"unnamed rule", "name: x\nrecolors: [{code: 'exit;'}]", []string{"recolors[0] must have a name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src), "test.yaml")
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "err = %v", err)
			for _, issue := range tt.issues {
				assert.Contains(t, verr.Error(), issue)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""), "empty.yaml")
	assert.ErrorContains(t, err, "is empty")

	_, err = Parse(strings.NewReader("name: x\ncolour: red\n"), "unknown.yaml")
	assert.ErrorContains(t, err, "parse unknown.yaml")
}

func TestCompile(t *testing.T) {
	fsys := newFs(t, map[string]string{
		"/mods/demo/rules.yaml":        demo,
		"/mods/demo/Scripts/Armor.pal": "test armor 0; skip_eq bare; add_shade in dim; bare: ret in;\n",
	})
	rs, err := Load(fsys, "/mods/demo/rules.yaml")
	require.NoError(t, err)

	p, err := unit.NewParser("demo")
	require.NoError(t, err)
	require.NoError(t, rs.Register(p))

	compiled, err := Compile(fsys, rs, p, script.UTF8)
	require.NoError(t, err)
	require.Len(t, compiled, 2)
	assert.Equal(t, "armor", compiled[0].Program.Name())

	w := vm.NewWorker[*unit.Unit]()
	w.Bind(compiled[0].Program, &unit.Unit{Armor: 5})
	assert.Equal(t, uint8(0x24), w.Evaluate(0x22))
	w.Bind(compiled[1].Program, &unit.Unit{})
	assert.Equal(t, uint8(0x92), w.Evaluate(0x22))

	// 定数の二重登録はエラー
	assert.Error(t, rs.Register(p))
}

func TestCompile_JoinsErrors(t *testing.T) {
	src := `
name: broken
recolors:
  - name: missing
    script: nowhere.pal
  - name: bad
    code: "paint in;"
  - name: good
    code: "ret in;"
`
	fsys := newFs(t, map[string]string{"/m/rules.yaml": src})
	rs, err := Load(fsys, "/m/rules.yaml")
	require.NoError(t, err)

	p := compiler.NewParser[*unit.Unit]("broken")
	compiled, err := Compile(fsys, rs, p, script.UTF8)
	require.Error(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "good", compiled[0].Rule.Name)

	assert.ErrorContains(t, err, `recolor "missing"`)
	assert.ErrorContains(t, err, `recolor "bad"`)
	assert.ErrorIs(t, err, compiler.ErrUnknownOperation)
}
