package cli

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/zurustar/palscript/pkg/script"
)

// clearEnv はテスト中の環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HEADLESS", "")
	t.Setenv("TIMEOUT", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestParseArgs_ValidArgs(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, c *Config)
	}{
		{
			name: "デフォルト設定",
			args: []string{"armor.pal"},
			check: func(t *testing.T, c *Config) {
				if c.ScriptPath != "armor.pal" || c.ImagePath != "" {
					t.Errorf("paths = %q %q", c.ScriptPath, c.ImagePath)
				}
				if c.LogLevel != "info" || c.LogFormat != "text" {
					t.Errorf("log = %s/%s", c.LogLevel, c.LogFormat)
				}
				if c.Encoding != script.UTF8 {
					t.Errorf("Encoding = %s", c.Encoding)
				}
				if c.Jobs != runtime.NumCPU() {
					t.Errorf("Jobs = %d, want NumCPU", c.Jobs)
				}
				if c.Timeout != 0 || c.Preview || c.Headless || c.Dump {
					t.Errorf("unexpected config: %+v", c)
				}
			},
		},
		{
			name: "画像と出力",
			args: []string{"armor.pal", "unit.bmp", "-o", "out.png"},
			check: func(t *testing.T, c *Config) {
				if c.ImagePath != "unit.bmp" || c.Output != "out.png" {
					t.Errorf("paths = %q %q", c.ImagePath, c.Output)
				}
			},
		},
		{
			name: "フラグは位置引数の後でもよい",
			args: []string{"mod.yaml", "--rule", "armor", "unit.bmp", "--timeout", "10", "-p"},
			check: func(t *testing.T, c *Config) {
				if c.Rule != "armor" || c.ImagePath != "unit.bmp" {
					t.Errorf("rule=%q image=%q", c.Rule, c.ImagePath)
				}
				if c.Timeout != 10*time.Second {
					t.Errorf("Timeout = %v", c.Timeout)
				}
				if !c.ShowPreview() {
					t.Error("preview should be shown")
				}
				if !c.IsRuleset() {
					t.Error("mod.yaml should be a ruleset")
				}
			},
		},
		{
			name: "複数の設定",
			args: []string{"a.pal", "b.bmp", "-s", "health=3", "--set", "faction=faction_hostile", "-c", "blit_part=2"},
			check: func(t *testing.T, c *Config) {
				if strings.Join(c.Sets, ",") != "health=3,faction=faction_hostile" {
					t.Errorf("Sets = %v", c.Sets)
				}
				if strings.Join(c.Customs, ",") != "blit_part=2" {
					t.Errorf("Customs = %v", c.Customs)
				}
			},
		},
		{
			name: "短縮形",
			args: []string{"a.pal", "-l", "debug", "-j", "3", "-e", "sjis", "-d"},
			check: func(t *testing.T, c *Config) {
				if c.LogLevel != "debug" || c.Jobs != 3 || c.Encoding != script.ShiftJIS || !c.Dump {
					t.Errorf("unexpected config: %+v", c)
				}
			},
		},
		{
			name: "ヘッドレスではプレビューしない",
			args: []string{"a.pal", "b.bmp", "--preview", "--headless"},
			check: func(t *testing.T, c *Config) {
				if c.ShowPreview() {
					t.Error("preview must be disabled in headless mode")
				}
				if !c.ShowSummary() {
					t.Error("headless preview should print a summary")
				}
			},
		},
		{
			name: "画像なしでもルールセットのスプライトをプレビュー",
			args: []string{"mod.yaml", "-p"},
			check: func(t *testing.T, c *Config) {
				if !c.ShowPreview() || c.ShowSummary() {
					t.Errorf("preview=%v summary=%v", c.ShowPreview(), c.ShowSummary())
				}
			},
		},
		{
			name: "ヘルプ",
			args: []string{"-h"},
			check: func(t *testing.T, c *Config) {
				if !c.ShowHelp {
					t.Error("ShowHelp should be true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseArgsFs(afero.NewMemMapFs(), tt.args)
			if err != nil {
				t.Fatalf("ParseArgs(%v) failed: %v", tt.args, err)
			}
			tt.check(t, c)
		})
	}
}

func TestParseArgs_InvalidArgs(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"スクリプトなし", []string{}},
		{"引数が多すぎる", []string{"a.pal", "b.bmp", "c.bmp"}},
		{"負のタイムアウト", []string{"a.pal", "--timeout", "-1"}},
		{"不正なログレベル", []string{"a.pal", "--log-level", "verbose"}},
		{"不正なログ形式", []string{"a.pal", "--log-format", "xml"}},
		{"不正な文字コード", []string{"a.pal", "-e", "latin1"}},
		{"負の並列数", []string{"a.pal", "-j", "-2"}},
		{"不正な代入", []string{"a.pal", "-s", "health"}},
		{"ルールはルールセットのみ", []string{"a.pal", "--rule", "x"}},
		{"出力には画像が必要", []string{"a.pal", "-o", "out.png"}},
		{"未知のフラグ", []string{"a.pal", "--colour"}},
		{"設定ファイルがない", []string{"a.pal", "--config", "missing.toml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgsFs(afero.NewMemMapFs(), tt.args); err == nil {
				t.Errorf("ParseArgs(%v) should fail", tt.args)
			}
		})
	}
}

func TestParseArgs_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEADLESS", "1")
	t.Setenv("TIMEOUT", "7")
	t.Setenv("LOG_LEVEL", "WARN")

	c, err := ParseArgsFs(afero.NewMemMapFs(), []string{"a.pal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Headless || c.Timeout != 7*time.Second || c.LogLevel != "warn" {
		t.Errorf("env not applied: %+v", c)
	}

	// コマンドラインフラグが優先
	c, err = ParseArgsFs(afero.NewMemMapFs(), []string{"a.pal", "--timeout", "2", "-l", "error", "--headless=false"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Headless || c.Timeout != 2*time.Second || c.LogLevel != "error" {
		t.Errorf("flags should win over env: %+v", c)
	}
}

func TestParseArgs_ConfigFile(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	toml := `
log_level = "debug"
log_format = "json"
encoding = "shift-jis"
jobs = 2
preview = true
timeout = 30
`
	if err := afero.WriteFile(fsys, DefaultConfigFile, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := ParseArgsFs(fsys, []string{"a.pal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ConfigFile != DefaultConfigFile {
		t.Errorf("ConfigFile = %q", c.ConfigFile)
	}
	if c.LogLevel != "debug" || c.LogFormat != "json" || c.Encoding != script.ShiftJIS ||
		c.Jobs != 2 || !c.Preview || c.Timeout != 30*time.Second {
		t.Errorf("config file not applied: %+v", c)
	}

	// 環境変数は設定ファイルより優先、フラグはさらに優先
	t.Setenv("LOG_LEVEL", "warn")
	c, err = ParseArgsFs(fsys, []string{"a.pal", "-j", "5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.LogLevel != "warn" || c.Jobs != 5 {
		t.Errorf("precedence wrong: level=%s jobs=%d", c.LogLevel, c.Jobs)
	}
}

func TestParseArgs_ConfigFileErrors(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "bad.toml", []byte("jobs = \"many\""), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "unknown.toml", []byte("colour = \"red\""), 0644); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"bad.toml", "unknown.toml"} {
		if _, err := ParseArgsFs(fsys, []string{"a.pal", "--config", name}); err == nil {
			t.Errorf("%s should be rejected", name)
		}
	}
}

func TestPrintHelp(t *testing.T) {
	var buf bytes.Buffer
	PrintHelp(&buf)
	out := buf.String()
	for _, want := range []string{"Usage:", "--rule", "--preview", "HEADLESS=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("help should mention %q", want)
		}
	}
}
