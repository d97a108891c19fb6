// Package graphics provides paletted image decoding and per-pixel recoloring.
// スクリプトはパレットインデックスを操作するため、画像は *image.Paletted のまま扱う。
//
// BMP圧縮方式:
//   - BI_RGB (0): 非圧縮（4ビット、8ビット）
//   - BI_RLE8 (1): 8ビットRLE圧縮
//   - BI_RLE4 (2): 4ビットRLE圧縮
//
// Go標準ライブラリおよび x/image/bmp はRLE圧縮をサポートしていないため、
// カスタムデコーダーを実装する。
package graphics

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// BMP圧縮方式の定数
const (
	biRGB  = 0 // 非圧縮
	biRLE8 = 1 // 8ビットRLE圧縮
	biRLE4 = 2 // 4ビットRLE圧縮
)

const bmpHeaderSize = 14 + 40

// デコードできる画像サイズの上限（ヘッダーの値を信用せずに確保しない）
const (
	maxBMPSide   = 1 << 15
	maxBMPPixels = 1 << 24
)

// ErrNotPaletted is returned when an image has no palette.
var ErrNotPaletted = errors.New("image is not paletted")

// BMPファイルヘッダー (14バイト)
type bmpFileHeader struct {
	Signature  [2]byte // "BM"
	FileSize   uint32  // ファイルサイズ
	Reserved1  uint16  // 予約
	Reserved2  uint16  // 予約
	DataOffset uint32  // 画像データへのオフセット
}

// BMP情報ヘッダー (BITMAPINFOHEADER, 40バイト)
type bmpInfoHeader struct {
	HeaderSize      uint32 // ヘッダーサイズ (40)
	Width           int32  // 画像の幅
	Height          int32  // 画像の高さ (負の場合はトップダウン)
	Planes          uint16 // プレーン数 (常に1)
	BitCount        uint16 // ビット深度
	Compression     uint32 // 圧縮方式
	ImageSize       uint32 // 画像データサイズ
	XPixelsPerMeter int32  // 水平解像度
	YPixelsPerMeter int32  // 垂直解像度
	ColorsUsed      uint32 // 使用色数
	ColorsImportant uint32 // 重要な色数
}

// pixelWriter はBMPの行順序を画像座標に変換して書き込む
type pixelWriter struct {
	img     *image.Paletted
	height  int
	topDown bool
}

func (w pixelWriter) set(x, y int, idx uint8) {
	if x < 0 || y < 0 || x >= w.img.Rect.Dx() || y >= w.height {
		return
	}
	if !w.topDown {
		y = w.height - 1 - y
	}
	w.img.SetColorIndex(x, y, idx)
}

// DecodeBMP は4ビットまたは8ビットのBMPをパレット画像としてデコードする（RLE圧縮対応）
func DecodeBMP(r io.Reader) (*image.Paletted, error) {
	var fileHeader bmpFileHeader
	if err := binary.Read(r, binary.LittleEndian, &fileHeader); err != nil {
		return nil, fmt.Errorf("failed to read BMP file header: %w", err)
	}
	if fileHeader.Signature != [2]byte{'B', 'M'} {
		return nil, fmt.Errorf("invalid BMP signature: %q", fileHeader.Signature[:])
	}

	var info bmpInfoHeader
	if err := binary.Read(r, binary.LittleEndian, &info); err != nil {
		return nil, fmt.Errorf("failed to read BMP info header: %w", err)
	}

	if info.BitCount != 8 && info.BitCount != 4 {
		return nil, fmt.Errorf("%w: BMP bit depth %d", ErrNotPaletted, info.BitCount)
	}
	switch info.Compression {
	case biRGB:
	case biRLE8:
		if info.BitCount != 8 {
			return nil, fmt.Errorf("RLE8 compression requires 8-bit depth, got %d", info.BitCount)
		}
	case biRLE4:
		if info.BitCount != 4 {
			return nil, fmt.Errorf("RLE4 compression requires 4-bit depth, got %d", info.BitCount)
		}
	default:
		return nil, fmt.Errorf("unsupported compression: %d", info.Compression)
	}

	width := int(info.Width)
	height := int(info.Height)
	topDown := height < 0
	if topDown {
		height = -height
	}
	if width <= 0 || height == 0 {
		return nil, fmt.Errorf("invalid BMP size: %dx%d", width, height)
	}
	if width > maxBMPSide || height > maxBMPSide || width*height > maxBMPPixels {
		return nil, fmt.Errorf("BMP size %dx%d exceeds the %d pixel limit", width, height, maxBMPPixels)
	}

	paletteSize := int(info.ColorsUsed)
	if paletteSize == 0 || paletteSize > 1<<info.BitCount {
		paletteSize = 1 << info.BitCount
	}
	palette := make(color.Palette, paletteSize)
	for i := range palette {
		var entry [4]byte // BGRA
		if _, err := io.ReadFull(r, entry[:]); err != nil {
			return nil, fmt.Errorf("failed to read palette entry %d: %w", i, err)
		}
		palette[i] = color.RGBA{R: entry[2], G: entry[1], B: entry[0], A: 255}
	}

	// 画像データの開始位置までスキップ
	skip := int64(fileHeader.DataOffset) - int64(bmpHeaderSize+len(palette)*4)
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("failed to skip to image data: %w", err)
		}
	}

	img := image.NewPaletted(image.Rect(0, 0, width, height), palette)
	w := pixelWriter{img: img, height: height, topDown: topDown}

	var err error
	switch info.Compression {
	case biRGB:
		err = decodeRGB(r, w, int(info.BitCount))
	case biRLE8:
		err = decodeRLE(r, w, 8)
	case biRLE4:
		err = decodeRLE(r, w, 4)
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// decodeRGB は非圧縮BMPをデコードする
func decodeRGB(r io.Reader, w pixelWriter, bitCount int) error {
	width := w.img.Rect.Dx()
	// 行は4バイト境界にパディングされる
	rowSize := ((width*bitCount+7)/8 + 3) &^ 3
	row := make([]byte, rowSize)

	for y := 0; y < w.height; y++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return fmt.Errorf("failed to read row %d: %w", y, err)
		}
		for x := 0; x < width; x++ {
			if bitCount == 8 {
				w.set(x, y, row[x])
			} else {
				w.set(x, y, nibble(row, x))
			}
		}
	}
	return nil
}

// nibble は4ビット画素列のi番目を返す（上位ニブルが先）
func nibble(data []byte, i int) uint8 {
	if i%2 == 0 {
		return data[i/2] >> 4
	}
	return data[i/2] & 0x0F
}

// decodeRLE はRLE8/RLE4圧縮BMPをデコードする
// エンコーディング:
//   - 2バイトペアを読み取る
//   - 最初のバイトが0でない場合: 2番目のバイトを最初のバイト個の画素に展開する
//     （RLE4では上位4ビットと下位4ビットを交互に使う）
//   - 最初のバイトが0の場合:
//   - 2番目のバイトが0: 行末 (End of Line)
//   - 2番目のバイトが1: ビットマップ終了 (End of Bitmap)
//   - 2番目のバイトが2: デルタ（位置移動）
//   - それ以外: 絶対モード（2番目のバイト個の画素をそのまま読み取る、2バイト境界にパディング）
func decodeRLE(r io.Reader, w pixelWriter, bits int) error {
	x, y := 0, 0
	for {
		var pair [2]byte
		if _, err := io.ReadFull(r, pair[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read RLE%d data: %w", bits, err)
		}
		count, value := int(pair[0]), pair[1]

		if count > 0 {
			run := []byte{value}
			for i := 0; i < count; i++ {
				if bits == 8 {
					w.set(x, y, value)
				} else {
					w.set(x, y, nibble(run, i%2))
				}
				x++
			}
			continue
		}

		switch value {
		case 0:
			x = 0
			y++
		case 1:
			return nil
		case 2:
			var delta [2]byte
			if _, err := io.ReadFull(r, delta[:]); err != nil {
				return fmt.Errorf("failed to read RLE%d delta: %w", bits, err)
			}
			x += int(delta[0])
			y += int(delta[1])
		default:
			n := int(value)
			size := n
			if bits == 4 {
				size = (n + 1) / 2
			}
			// 絶対モードは2バイト境界にパディングされる
			data := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, data); err != nil {
				return fmt.Errorf("failed to read RLE%d absolute data: %w", bits, err)
			}
			for i := 0; i < n; i++ {
				if bits == 8 {
					w.set(x, y, data[i])
				} else {
					w.set(x, y, nibble(data, i))
				}
				x++
			}
		}
	}
}

// IsBMPRLECompressedFromBytes はバイト配列からBMPがRLE圧縮されているかどうかを判定する
func IsBMPRLECompressedFromBytes(data []byte) (bool, error) {
	if len(data) < bmpHeaderSize {
		return false, fmt.Errorf("data too short for BMP header")
	}
	if data[0] != 'B' || data[1] != 'M' {
		return false, nil // BMPファイルではない
	}
	// 圧縮方式（オフセット 30 = 14 + 16）
	compression := binary.LittleEndian.Uint32(data[30:34])
	return compression == biRLE8 || compression == biRLE4, nil
}

// bmpBitCount はBMPヘッダーのビット深度を返す。BMPでなければ0
func bmpBitCount(data []byte) int {
	if len(data) < bmpHeaderSize || data[0] != 'B' || data[1] != 'M' {
		return 0
	}
	// ビット深度（オフセット 28 = 14 + 14）
	return int(binary.LittleEndian.Uint16(data[28:30]))
}

// DecodeBMPFromBytes はバイト配列からBMPをデコードする
func DecodeBMPFromBytes(data []byte) (*image.Paletted, error) {
	return DecodeBMP(bytes.NewReader(data))
}
