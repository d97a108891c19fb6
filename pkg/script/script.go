package script

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/zurustar/palscript/pkg/fileutil"
)

// Encoding はスクリプトファイルの文字コード
type Encoding string

const (
	UTF8     Encoding = "utf-8"
	ShiftJIS Encoding = "shift-jis"
)

// ParseEncoding 文字コード名を解釈する
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "shift-jis", "shiftjis", "sjis", "cp932":
		return ShiftJIS, nil
	}
	return "", fmt.Errorf("unsupported encoding: %s", name)
}

// Extension はスクリプトファイルの拡張子
const Extension = ".pal"

// Script はスクリプトファイルを表す
type Script struct {
	FileName string // ファイル名
	Path     string // 実際のパス
	Content  string // UTF-8に変換された内容
	Size     int64  // ファイルサイズ
}

// Name 拡張子を除いたファイル名
func (s *Script) Name() string {
	return strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName))
}

// Loader はスクリプトファイルの読み込みを行う
type Loader struct {
	fs       afero.Fs
	basePath string
	encoding Encoding
}

// NewLoader Loaderを作成
func NewLoader(fsys afero.Fs, basePath string, enc Encoding) *Loader {
	if enc == "" {
		enc = UTF8
	}
	return &Loader{
		fs:       fsys,
		basePath: basePath,
		encoding: enc,
	}
}

// BasePath 基準ディレクトリを返す
func (l *Loader) BasePath() string {
	return l.basePath
}

// Load 単一のスクリプトファイルを読み込む（大文字小文字を無視）
func (l *Loader) Load(name string) (*Script, error) {
	path := name
	if !filepath.IsAbs(path) && l.basePath != "" {
		path = filepath.Join(l.basePath, name)
	}

	actual, err := fileutil.Resolve(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to find script %s: %w", name, err)
	}

	data, err := afero.ReadFile(l.fs, actual)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", actual, err)
	}

	content, err := Decode(data, l.encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to convert encoding of %s: %w", actual, err)
	}

	return &Script{
		FileName: filepath.Base(actual),
		Path:     actual,
		Content:  content,
		Size:     int64(len(data)),
	}, nil
}

// LoadAll 基準ディレクトリ以下のすべての.palファイルを読み込む（パス順）
func (l *Loader) LoadAll() ([]*Script, error) {
	var files []string
	err := afero.Walk(l.fs, l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		// 拡張子をcase-insensitiveで比較
		if strings.EqualFold(filepath.Ext(path), Extension) {
			rel, err := filepath.Rel(l.basePath, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find script files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no script files found in %s", l.basePath)
	}

	scripts := make([]*Script, 0, len(files))
	for _, path := range files {
		s, err := l.Load(path)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode バイト列をUTF-8文字列に変換する
func Decode(data []byte, enc Encoding) (string, error) {
	switch enc {
	case ShiftJIS:
		return convertShiftJISToUTF8(data)
	case UTF8, "":
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	return "", fmt.Errorf("unsupported encoding: %s", enc)
}

// convertShiftJISToUTF8 Shift-JISからUTF-8に変換
func convertShiftJISToUTF8(data []byte) (string, error) {
	decoder := japanese.ShiftJIS.NewDecoder()
	reader := transform.NewReader(bytes.NewReader(data), decoder)

	utf8Data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to decode Shift-JIS: %w", err)
	}

	return string(utf8Data), nil
}
