package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"

	"github.com/zurustar/palscript/pkg/logger"
	"github.com/zurustar/palscript/pkg/script"
)

// DefaultConfigFile は --config 未指定時に読み込む設定ファイル名
const DefaultConfigFile = "palscript.toml"

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	ScriptPath string        // スクリプト（.pal）、modルールセット（.yaml）またはスクリプトのディレクトリ
	ImagePath  string        // 入力画像のパス（省略時はコンパイルのみ）
	Rule       string        // ルールセット内のルール名
	Output     string        // 出力PNGのパス
	Sets       []string      // ユニットのフィールド設定（field=value）
	Customs    []string      // カスタムレジスタの設定（name=value）
	Jobs       int           // 並列に処理する帯の数
	Preview    bool          // プレビューウィンドウを表示
	Headless   bool          // ヘッドレスモード（プレビューを無効化）
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	LogLevel   string        // ログレベル（debug, info, warn, error）
	LogFormat  string        // ログ形式（text, json）
	Encoding   script.Encoding
	Dump       bool   // 逆アセンブル結果をログに出力
	ConfigFile string // 読み込んだ設定ファイル
	ShowHelp   bool   // ヘルプ表示フラグ
}

// fileConfig は設定ファイル（TOML）の内容
type fileConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Encoding  string `toml:"encoding"`
	Jobs      int    `toml:"jobs"`
	Preview   bool   `toml:"preview"`
	Timeout   int    `toml:"timeout"`
}

// IsRuleset はスクリプトパスがmodルールセットかどうかを返す
func (c *Config) IsRuleset() bool {
	ext := strings.ToLower(filepath.Ext(c.ScriptPath))
	return ext == ".yaml" || ext == ".yml"
}

// ShowPreview はプレビューウィンドウを開くかどうかを返す
// 画像を省略してもルールセットのスプライトを表示できる
func (c *Config) ShowPreview() bool {
	return c.Preview && !c.Headless
}

// ShowSummary はヘッドレスで結果の一覧を表示するかどうかを返す
func (c *Config) ShowSummary() bool {
	return c.Preview && c.Headless
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	return ParseArgsFs(afero.NewOsFs(), args)
}

// ParseArgsFs 設定ファイルを fsys から読み込む ParseArgs
// 優先順位: コマンドラインフラグ > 環境変数 > 設定ファイル > デフォルト値
func ParseArgsFs(fsys afero.Fs, args []string) (*Config, error) {
	fs := newFlagSet(io.Discard)
	config := &Config{}
	var (
		timeoutSec int
		encoding   string
	)
	bindFlags(fs, config, &timeoutSec, &encoding)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if config.ShowHelp {
		return config, nil
	}

	// 設定ファイル（フラグ・環境変数が優先）
	path := config.ConfigFile
	explicit := fs.Changed("config")
	if path == "" {
		path = DefaultConfigFile
	}
	file, meta, err := loadFile(fsys, path)
	switch {
	case err == nil:
		config.ConfigFile = path
	case !explicit && errors.Is(err, os.ErrNotExist):
		config.ConfigFile = ""
	default:
		return nil, err
	}
	if meta.IsDefined("log_level") && !fs.Changed("log-level") {
		config.LogLevel = file.LogLevel
	}
	if meta.IsDefined("log_format") && !fs.Changed("log-format") {
		config.LogFormat = file.LogFormat
	}
	if meta.IsDefined("encoding") && !fs.Changed("encoding") {
		encoding = file.Encoding
	}
	if meta.IsDefined("jobs") && !fs.Changed("jobs") {
		config.Jobs = file.Jobs
	}
	if meta.IsDefined("preview") && !fs.Changed("preview") {
		config.Preview = file.Preview
	}
	if meta.IsDefined("timeout") && !fs.Changed("timeout") {
		timeoutSec = file.Timeout
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !fs.Changed("headless") {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}
	if !fs.Changed("timeout") {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}
	if !fs.Changed("log-level") {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベル・形式の検証
	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return nil, fmt.Errorf("%w (must be debug, info, warn, or error)", err)
	}
	if config.LogFormat != "text" && config.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", config.LogFormat)
	}

	enc, err := script.ParseEncoding(encoding)
	if err != nil {
		return nil, err
	}
	config.Encoding = enc

	if config.Jobs < 0 {
		return nil, fmt.Errorf("jobs must be non-negative, got %d", config.Jobs)
	}
	if config.Jobs == 0 {
		config.Jobs = runtime.NumCPU()
	}

	for _, s := range append(append([]string(nil), config.Sets...), config.Customs...) {
		if !strings.Contains(s, "=") {
			return nil, fmt.Errorf("invalid assignment %q: expected name=value", s)
		}
	}

	// 位置引数
	switch fs.NArg() {
	case 0:
		return nil, fmt.Errorf("missing script path")
	case 1, 2:
		config.ScriptPath = fs.Arg(0)
		config.ImagePath = fs.Arg(1)
	default:
		return nil, fmt.Errorf("too many arguments: %s", strings.Join(fs.Args()[2:], " "))
	}

	if config.Rule != "" && !config.IsRuleset() {
		return nil, fmt.Errorf("--rule requires a ruleset (.yaml), got %s", config.ScriptPath)
	}
	if config.Output != "" && config.ImagePath == "" {
		return nil, fmt.Errorf("--output requires an input image")
	}

	return config, nil
}

func newFlagSet(out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("palscript", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	return fs
}

func bindFlags(fs *flag.FlagSet, config *Config, timeoutSec *int, encoding *string) {
	fs.StringVarP(&config.Rule, "rule", "r", "", "ルールセット内のルール名")
	fs.StringVarP(&config.Output, "output", "o", "", "出力PNGファイル")
	fs.StringArrayVarP(&config.Sets, "set", "s", nil, "ユニットのフィールドを設定（field=value、複数指定可）")
	fs.StringArrayVarP(&config.Customs, "custom", "c", nil, "カスタムレジスタを設定（name=value、複数指定可）")
	fs.IntVarP(&config.Jobs, "jobs", "j", 0, "並列数（0はCPU数）")
	fs.BoolVarP(&config.Preview, "preview", "p", false, "プレビューウィンドウを表示")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.IntVarP(timeoutSec, "timeout", "t", 0, "タイムアウト時間（秒）")
	fs.StringVarP(&config.LogLevel, "log-level", "l", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogFormat, "log-format", "text", "ログ形式（text, json）")
	fs.StringVarP(encoding, "encoding", "e", "utf-8", "スクリプトの文字コード（utf-8, shift-jis）")
	fs.BoolVarP(&config.Dump, "dump", "d", false, "逆アセンブル結果を出力")
	fs.StringVar(&config.ConfigFile, "config", "", "設定ファイル（デフォルト: "+DefaultConfigFile+"）")
	fs.BoolVarP(&config.ShowHelp, "help", "h", false, "ヘルプを表示")
}

// loadFile 設定ファイルを読み込む
func loadFile(fsys afero.Fs, path string) (fileConfig, toml.MetaData, error) {
	var fc fileConfig
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fc, toml.MetaData{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	meta, err := toml.Decode(string(data), &fc)
	if err != nil {
		return fc, toml.MetaData{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fc, toml.MetaData{}, fmt.Errorf("unknown key %q in config %s", undecoded[0].String(), path)
	}
	return fc, meta, nil
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fs := newFlagSet(w)
	var (
		config   Config
		timeout  int
		encoding string
	)
	bindFlags(fs, &config, &timeout, &encoding)

	fmt.Fprintf(w, `palscript - パレット再着色スクリプト

Usage:
  palscript [options] <script.pal|mod.yaml|dir> [input.bmp]

Arguments:
  script.pal    再着色スクリプト
  mod.yaml      modルールセット（--rule でルールを選択、省略時は全ルールをコンパイル）
  dir           ディレクトリ以下のすべての.palをコンパイル
  input.bmp     入力画像（4/8ビットBMPまたはパレットPNG、省略時はコンパイルのみ）

Options:
%s
Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル

Examples:
  palscript armor.pal unit.bmp -o out.png           スクリプトを適用してPNGを出力
  palscript mod.yaml -r armor unit.bmp --preview    ルールを適用してプレビュー
  palscript armor.pal unit.bmp -s faction=faction_hostile -c blit_part=3
  palscript mod.yaml --dump                         全ルールをコンパイルして逆アセンブル
  palscript scripts/                                ディレクトリ内のスクリプトを一括チェック
`, fs.FlagUsages())
}
