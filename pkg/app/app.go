package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/zurustar/palscript/pkg/cli"
	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/compiler/parser"
	"github.com/zurustar/palscript/pkg/graphics"
	"github.com/zurustar/palscript/pkg/logger"
	"github.com/zurustar/palscript/pkg/mod"
	"github.com/zurustar/palscript/pkg/program"
	"github.com/zurustar/palscript/pkg/script"
	"github.com/zurustar/palscript/pkg/unit"
	"github.com/zurustar/palscript/pkg/vm"
	"github.com/zurustar/palscript/pkg/window"
)

// previewScale はプレビューウィンドウの初期拡大率
const previewScale = 2

// recolor はコンパイル済みの再着色ルール
type recolor struct {
	name   string
	prog   *program.Program[*unit.Unit]
	sprite string // ルールセットで指定された画像（省略可）
}

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
	fs     afero.Fs
	out    io.Writer
	errOut io.Writer
	parser *compiler.Parser[*unit.Unit]

	// runPreview はプレビューウィンドウを表示する（テストで差し替え可能）
	runPreview func(entries []window.Entry, scale int, cfg *cli.Config) error
}

// New Applicationを作成
func New(fsys afero.Fs, out, errOut io.Writer) *Application {
	return &Application{
		fs:     fsys,
		out:    out,
		errOut: errOut,
		runPreview: func(entries []window.Entry, scale int, cfg *cli.Config) error {
			return window.Run(entries, scale, cfg.Timeout)
		},
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	config, err := cli.ParseArgsFs(app.fs, args)
	if err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	app.config = config

	if config.ShowHelp {
		cli.PrintHelp(app.out)
		return nil
	}

	// 2. ロガーの初期化
	if err := logger.InitLoggerWith(app.errOut, config.LogLevel, config.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()
	app.log.Info("Application started", "script", config.ScriptPath, "config", config.ConfigFile)

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	// 3. パーサーの準備
	p, err := unit.NewParser(strings.TrimSuffix(filepath.Base(config.ScriptPath), filepath.Ext(config.ScriptPath)))
	if err != nil {
		return err
	}
	p.SetLogger(app.log)
	app.parser = p

	// 4. スクリプトのコンパイル
	recolors, err := app.compile()
	if err != nil {
		return fmt.Errorf("failed to compile: %w", err)
	}
	p.LogMetadata()
	app.log.Info("Scripts compiled successfully", "count", len(recolors))

	if config.Dump {
		for _, r := range recolors {
			fmt.Fprintf(app.out, "%s:\n%s", r.name, r.prog.Disassemble())
		}
	}

	// 5. 画像への適用
	entries, err := app.apply(ctx, recolors)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		app.log.Info("No input image, compile only")
		return nil
	}

	if err := app.writeOutput(entries); err != nil {
		return err
	}

	// 6. プレビュー
	switch {
	case config.ShowPreview():
		if err := app.runPreview(entries, previewScale, config); err != nil {
			return fmt.Errorf("failed to run preview: %w", err)
		}
	case config.ShowSummary():
		if err := window.RunHeadless(entries, app.out); err != nil {
			return err
		}
	}

	app.log.Info("Application terminated normally")
	return nil
}

// compile スクリプトまたはルールセットをコンパイルする
func (app *Application) compile() ([]recolor, error) {
	cfg := app.config
	if isDir, _ := afero.IsDir(app.fs, cfg.ScriptPath); isDir {
		return app.compileDir()
	}
	if !cfg.IsRuleset() {
		loader := script.NewLoader(app.fs, filepath.Dir(cfg.ScriptPath), cfg.Encoding)
		prog, err := app.parser.CompileFile(loader, filepath.Base(cfg.ScriptPath))
		if err != nil {
			return nil, err
		}
		return []recolor{{name: prog.Name(), prog: prog}}, nil
	}

	rs, err := mod.Load(app.fs, cfg.ScriptPath)
	if err != nil {
		return nil, err
	}
	if err := rs.Register(app.parser); err != nil {
		return nil, err
	}

	if cfg.Rule != "" {
		rule, ok := rs.Rule(cfg.Rule)
		if !ok {
			return nil, fmt.Errorf("ruleset %s has no recolor %q", rs.Name, cfg.Rule)
		}
		prog, err := mod.CompileRule(app.fs, rs, rule, app.parser, cfg.Encoding)
		if err != nil {
			return nil, err
		}
		return []recolor{{name: rule.Name, prog: prog, sprite: rs.SpritePath(rule)}}, nil
	}

	compiled, err := mod.Compile(app.fs, rs, app.parser, cfg.Encoding)
	if err != nil {
		return nil, err
	}
	out := make([]recolor, 0, len(compiled))
	for _, c := range compiled {
		out = append(out, recolor{name: c.Rule.Name, prog: c.Program, sprite: rs.SpritePath(c.Rule)})
	}
	return out, nil
}

// compileDir ディレクトリ以下のすべてのスクリプトをコンパイルする
// 失敗したスクリプトはまとめて報告する
func (app *Application) compileDir() ([]recolor, error) {
	loader := script.NewLoader(app.fs, app.config.ScriptPath, app.config.Encoding)
	scripts, err := loader.LoadAll()
	if err != nil {
		return nil, err
	}

	var (
		out  []recolor
		errs []error
	)
	for _, s := range scripts {
		prog, err := app.parser.CompileNamed(s.Name(), s.Content)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		app.log.Debug("Script compiled", "script", s.Path)
		out = append(out, recolor{name: prog.Name(), prog: prog})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// subject コマンドラインからユニットを作成する
func (app *Application) subject() (*unit.Unit, error) {
	u := &unit.Unit{}
	if err := u.ApplyWith(app.config.Sets, app.constant); err != nil {
		return nil, err
	}
	return u, nil
}

// customs カスタムレジスタの値を解決する
func (app *Application) customs() (map[int]int, error) {
	out := make(map[int]int, len(app.config.Customs))
	for _, a := range app.config.Customs {
		name, raw, _ := strings.Cut(a, "=")
		name, raw = strings.TrimSpace(name), strings.TrimSpace(raw)
		idx, ok := app.parser.CustomIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown custom register %q", name)
		}
		v, err := app.value(raw)
		if err != nil {
			return nil, fmt.Errorf("custom register %s: %w", name, err)
		}
		out[idx] = v
	}
	return out, nil
}

// constant 登録済み定数（ルールセットの定数を含む）を返す
func (app *Application) constant(name string) (int, bool) {
	info, ok := app.parser.Lookup(name)
	if !ok || info.Kind != compiler.KindConst {
		return 0, false
	}
	return info.Value, true
}

// value 数値または登録済み定数を解釈する（数値の書式はスクリプトと同じ）
func (app *Application) value(raw string) (int, error) {
	if v, ok := app.constant(raw); ok {
		return v, nil
	}
	v, err := parser.ParseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number or constant: %s", raw)
	}
	return v, nil
}

// apply 各ルールを画像に適用する
func (app *Application) apply(ctx context.Context, recolors []recolor) ([]window.Entry, error) {
	u, err := app.subject()
	if err != nil {
		return nil, err
	}
	customs, err := app.customs()
	if err != nil {
		return nil, err
	}
	app.log.Debug("Subject", "unit", u.String(), "customs", customs)

	images := make(map[string]*image.Paletted)
	var entries []window.Entry
	for _, r := range recolors {
		path := app.config.ImagePath
		if path == "" {
			path = r.sprite
		}
		if path == "" {
			continue
		}
		src, ok := images[path]
		if !ok {
			src, err = graphics.LoadPaletted(app.fs, path)
			if err != nil {
				return nil, fmt.Errorf("failed to load image: %w", err)
			}
			images[path] = src
		}

		dst := graphics.ClonePaletted(src)
		factory := func() graphics.Evaluator {
			w := vm.NewWorker[*unit.Unit]()
			for idx, v := range customs {
				w.SetCustom(idx, v)
			}
			w.Bind(r.prog, u)
			return w
		}
		if err := graphics.ApplyParallel(ctx, factory, src, dst, src.Rect, app.config.Jobs); err != nil {
			return nil, fmt.Errorf("recolor %q: %w", r.name, err)
		}
		e := window.Entry{Name: r.name, Before: src, After: dst}
		app.log.Info("Recolored", "rule", r.name, "image", path, "changed", e.ChangedPixels())
		entries = append(entries, e)
	}
	return entries, nil
}

// outputPath 出力ファイル名（複数ルールの場合はルール名を付加）
func outputPath(base, rule string, multiple bool) string {
	if !multiple {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + rule + ext
}

// writeOutput 結果をPNGとして書き出す
func (app *Application) writeOutput(entries []window.Entry) error {
	if app.config.Output == "" {
		return nil
	}
	for _, e := range entries {
		path := outputPath(app.config.Output, e.Name, len(entries) > 1)
		if err := app.writePNG(path, e.After); err != nil {
			return err
		}
		app.log.Info("Wrote image", "path", path)
	}
	return nil
}

func (app *Application) writePNG(path string, img image.Image) (err error) {
	f, err := app.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return graphics.EncodePNG(f, img)
}
