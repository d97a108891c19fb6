// Package mod loads recolor rulesets from YAML files.
//
// A ruleset names constants shared by its scripts and a list of recolor
// rules. Each rule carries its script either inline (code) or as a path
// relative to the ruleset file (script), plus an optional sprite to preview.
package mod

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/fileutil"
	"github.com/zurustar/palscript/pkg/logger"
	"github.com/zurustar/palscript/pkg/program"
	"github.com/zurustar/palscript/pkg/script"
)

// Rule is one recolor rule.
type Rule struct {
	Name   string
	Script string // path relative to the ruleset directory
	Code   string // inline source
	Sprite string // path relative to the ruleset directory
}

// Ruleset is a parsed ruleset file.
type Ruleset struct {
	Path      string
	Dir       string
	Name      string
	Constants map[string]int
	Recolors  []*Rule
}

type rulesetFile struct {
	Name      string         `yaml:"name"`
	Constants map[string]int `yaml:"constants"`
	Recolors  []ruleFile     `yaml:"recolors"`
}

type ruleFile struct {
	Name   string `yaml:"name"`
	Script string `yaml:"script"`
	Code   string `yaml:"code"`
	Sprite string `yaml:"sprite"`
}

// ValidationError aggregates ruleset validation failures.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ruleset %s: validation failed:", e.Path)
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load reads and validates the ruleset at path. The lookup is case-insensitive.
func Load(fsys afero.Fs, path string) (*Ruleset, error) {
	actual, err := fileutil.Resolve(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("ruleset: open %s: %w", path, err)
	}
	f, err := fsys.Open(actual)
	if err != nil {
		return nil, fmt.Errorf("ruleset: open %s: %w", actual, err)
	}
	defer f.Close()

	rs, err := Parse(f, actual)
	if err != nil {
		return nil, err
	}
	logger.GetLogger().Info("loaded ruleset", "name", rs.Name, "path", actual, "recolors", len(rs.Recolors))
	return rs, nil
}

// Parse decodes a ruleset. path is recorded for relative script lookups.
func Parse(r io.Reader, path string) (*Ruleset, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var raw rulesetFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ruleset: %s is empty", path)
		}
		return nil, fmt.Errorf("ruleset: parse %s: %w", path, err)
	}

	rs := &Ruleset{
		Path:      path,
		Dir:       filepath.Dir(path),
		Name:      raw.Name,
		Constants: raw.Constants,
	}
	for _, rf := range raw.Recolors {
		rs.Recolors = append(rs.Recolors, &Rule{
			Name:   strings.TrimSpace(rf.Name),
			Script: rf.Script,
			Code:   rf.Code,
			Sprite: rf.Sprite,
		})
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *Ruleset) validate() error {
	errs := ValidationError{Path: rs.Path}
	if rs.Name == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	}
	if len(rs.Recolors) == 0 {
		errs.Issues = append(errs.Issues, "at least one recolor rule is required")
	}
	seen := make(map[string]bool, len(rs.Recolors))
	for i, r := range rs.Recolors {
		switch {
		case r.Name == "":
			errs.Issues = append(errs.Issues, fmt.Sprintf("recolors[%d] must have a name", i))
		case seen[r.Name]:
			errs.Issues = append(errs.Issues, fmt.Sprintf("recolors[%d]: duplicate name %q", i, r.Name))
		}
		seen[r.Name] = true
		if (r.Script == "") == (r.Code == "") {
			errs.Issues = append(errs.Issues, fmt.Sprintf("recolors[%d] %q: exactly one of script or code is required", i, r.Name))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

// Rule finds a rule by name.
func (rs *Ruleset) Rule(name string) (*Rule, bool) {
	for _, r := range rs.Recolors {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// ConstRegistrar accepts named constants. compiler.Parser implements it.
type ConstRegistrar interface {
	AddConst(name string, value int) error
}

// Register adds the ruleset constants to p in name order.
func (rs *Ruleset) Register(p ConstRegistrar) error {
	names := make([]string, 0, len(rs.Constants))
	for name := range rs.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := p.AddConst(name, rs.Constants[name]); err != nil {
			return fmt.Errorf("ruleset %s: constant %q: %w", rs.Name, name, err)
		}
	}
	return nil
}

// Source returns the script text of rule, loading it through a script
// loader rooted at the ruleset directory when the rule names a file.
func (rs *Ruleset) Source(fsys afero.Fs, rule *Rule, enc script.Encoding) (string, error) {
	if rule.Code != "" {
		return rule.Code, nil
	}
	s, err := script.NewLoader(fsys, rs.Dir, enc).Load(rule.Script)
	if err != nil {
		return "", err
	}
	return s.Content, nil
}

// SpritePath returns the sprite path of rule relative to the ruleset, or "".
func (rs *Ruleset) SpritePath(rule *Rule) string {
	if rule.Sprite == "" {
		return ""
	}
	if filepath.IsAbs(rule.Sprite) {
		return rule.Sprite
	}
	return filepath.Join(rs.Dir, filepath.FromSlash(rule.Sprite))
}

// Compiled pairs a rule with its program.
type Compiled[S any] struct {
	Rule    *Rule
	Program *program.Program[S]
}

// Compile compiles every rule of rs with p. Rules that fail are left out of
// the result and their errors are joined into the returned error.
func Compile[S any](fsys afero.Fs, rs *Ruleset, p *compiler.Parser[S], enc script.Encoding) ([]Compiled[S], error) {
	var (
		out  []Compiled[S]
		errs []error
	)
	for _, rule := range rs.Recolors {
		prog, err := CompileRule(fsys, rs, rule, p, enc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, Compiled[S]{Rule: rule, Program: prog})
	}
	return out, errors.Join(errs...)
}

// CompileRule compiles one rule under its name.
func CompileRule[S any](fsys afero.Fs, rs *Ruleset, rule *Rule, p *compiler.Parser[S], enc script.Encoding) (*program.Program[S], error) {
	src, err := rs.Source(fsys, rule, enc)
	if err != nil {
		return nil, fmt.Errorf("recolor %q: %w", rule.Name, err)
	}
	prog, err := p.CompileNamed(rule.Name, src)
	if err != nil {
		return nil, fmt.Errorf("recolor %q: %w", rule.Name, err)
	}
	return prog, nil
}
