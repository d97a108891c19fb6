package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
	"github.com/tliron/commonlog"

	"github.com/zurustar/palscript/pkg/compiler"
	"github.com/zurustar/palscript/pkg/lsp"
	"github.com/zurustar/palscript/pkg/mod"
	"github.com/zurustar/palscript/pkg/unit"
)

const version = "0.1.0"

type options struct {
	ruleset   string
	tcp       string
	verbosity int
	logFile   string
}

func parseFlags(args []string, out io.Writer) (*options, error) {
	fs := flag.NewFlagSet("palscript-lsp", flag.ContinueOnError)
	fs.SetOutput(out)
	o := &options{}
	fs.StringVarP(&o.ruleset, "ruleset", "r", "", "modルールセット（定数を補完・診断に使う）")
	fs.StringVar(&o.tcp, "tcp", "", "標準入出力の代わりにTCPで待ち受けるアドレス")
	fs.CountVarP(&o.verbosity, "verbose", "v", "ログの詳細度（複数指定可）")
	fs.StringVar(&o.logFile, "log-file", "", "ログファイル（省略時は標準エラー出力）")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// newParser ユニット用パーサーを作成し、ルールセットの定数を登録する
func newParser(fsys afero.Fs, ruleset string) (*compiler.Parser[*unit.Unit], error) {
	p, err := unit.NewParser("document")
	if err != nil {
		return nil, err
	}
	if ruleset == "" {
		return p, nil
	}
	rs, err := mod.Load(fsys, ruleset)
	if err != nil {
		return nil, err
	}
	if err := rs.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

func run(args []string) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	var logPath *string
	if o.logFile != "" {
		logPath = &o.logFile
	}
	commonlog.Configure(o.verbosity, logPath)

	p, err := newParser(afero.NewOsFs(), o.ruleset)
	if err != nil {
		return err
	}

	server := lsp.New(p, version)
	if o.tcp != "" {
		return server.RunTCP(o.tcp)
	}
	return server.RunStdio()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
