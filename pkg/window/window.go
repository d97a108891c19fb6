package window

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"
)

var (
	// 背景色 #0087C8
	backgroundColor = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// 選択中のテキスト色（黄色）
	selectedTextColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

// レイアウト定数
const (
	margin        = 16
	captionHeight = 20
	helpHeight    = 20
	maxScale      = 8
)

// Entry は1つの再着色結果（変換前と変換後）
type Entry struct {
	Name   string
	Before *image.Paletted
	After  *image.Paletted
}

// ChangedPixels は変換で値が変わった画素数を返す
func (e Entry) ChangedPixels() int {
	n := 0
	for i, p := range e.Before.Pix {
		if e.After.Pix[i] != p {
			n++
		}
	}
	return n
}

// Game はEbitengineのゲームインターフェースを実装する
// 変換前と変換後の画像を左右に並べて表示する
type Game struct {
	entries   []Entry
	selected  int           // 表示中のエントリ
	scale     int           // 拡大率
	timeout   time.Duration // タイムアウト時間
	startTime time.Time     // 開始時刻

	// エントリごとのEbiten画像（Drawで遅延生成）
	images map[int][2]*ebiten.Image
	mu     sync.RWMutex
}

// NewGame Gameを作成
func NewGame(entries []Entry, scale int, timeout time.Duration) *Game {
	return &Game{
		entries:   entries,
		scale:     clampScale(scale),
		timeout:   timeout,
		startTime: time.Now(),
		images:    make(map[int][2]*ebiten.Image),
	}
}

func clampScale(s int) int {
	return max(1, min(s, maxScale))
}

// nextIndex はエントリ番号を循環させる
func nextIndex(i, delta, n int) int {
	if n == 0 {
		return 0
	}
	return ((i+delta)%n + n) % n
}

// Selected 表示中のエントリ番号
func (g *Game) Selected() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selected
}

// Scale 現在の拡大率
func (g *Game) Scale() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scale
}

// Select 表示するエントリを移動する
func (g *Game) Select(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selected = nextIndex(g.selected, delta, len(g.entries))
}

// Zoom 拡大率を変更する
func (g *Game) Zoom(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = clampScale(g.scale + delta)
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.timeout > 0 && time.Since(g.startTime) >= g.timeout {
		return ebiten.Termination
	}

	// Escキーで終了
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyRight) || inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		g.Select(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) || inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		g.Select(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		g.Zoom(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		g.Zoom(-1)
	}
	return nil
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	g.mu.RLock()
	selected, scale := g.selected, g.scale
	g.mu.RUnlock()
	if len(g.entries) == 0 {
		drawText(screen, "no images", margin, margin, textColor)
		return
	}

	e := g.entries[selected]
	pair := g.imagesFor(selected)
	w := e.Before.Rect.Dx() * scale

	drawText(screen, caption(e, selected, len(g.entries)), margin, margin, selectedTextColor)
	for i, img := range pair {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(float64(scale), float64(scale))
		op.GeoM.Translate(float64(margin+i*(w+margin)), float64(margin+captionHeight))
		screen.DrawImage(img, op)
	}

	_, h := g.Layout(0, 0)
	drawText(screen, "LEFT/RIGHT: rule  +/-: zoom  ESC: exit", margin, h-helpHeight, textColor)
}

func (g *Game) imagesFor(i int) [2]*ebiten.Image {
	g.mu.Lock()
	defer g.mu.Unlock()
	pair, ok := g.images[i]
	if !ok {
		pair = [2]*ebiten.Image{
			ebiten.NewImageFromImage(g.entries[i].Before),
			ebiten.NewImageFromImage(g.entries[i].After),
		}
		g.images[i] = pair
	}
	return pair
}

func drawText(screen *ebiten.Image, s string, x, y int, c color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(c)
	text.Draw(screen, s, defaultFace, op)
}

// caption は表示中のエントリの説明
func caption(e Entry, i, n int) string {
	return fmt.Sprintf("[%d/%d] %s  (%dx%d, %d pixels changed)",
		i+1, n, e.Name, e.Before.Rect.Dx(), e.Before.Rect.Dy(), e.ChangedPixels())
}

// Layout 画面サイズを返す
// 変換前と変換後を横に並べ、上にキャプション、下に操作説明を置く
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return layoutSize(g.entries, g.scale)
}

func layoutSize(entries []Entry, scale int) (int, int) {
	w, h := 0, 0
	for _, e := range entries {
		w = max(w, e.Before.Rect.Dx())
		h = max(h, e.Before.Rect.Dy())
	}
	width := max(margin*3+2*w*scale, 320)
	height := margin*2 + captionHeight + helpHeight + h*scale
	return width, height
}

// RunHeadless ヘッドレスモードで結果の概要を出力する
func RunHeadless(entries []Entry, writer io.Writer) error {
	if len(entries) == 0 {
		return fmt.Errorf("no images to show")
	}
	for i, e := range entries {
		if _, err := fmt.Fprintln(writer, caption(e, i, len(entries))); err != nil {
			return err
		}
	}
	return nil
}

// Run GUIモードでウィンドウを実行
func Run(entries []Entry, scale int, timeout time.Duration) error {
	game := NewGame(entries, scale, timeout)

	width, height := game.Layout(0, 0)
	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowTitle("palscript - recolor preview")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run preview: %w", err)
	}
	return nil
}
