package graphics

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"
)

// Evaluator maps one palette index to another. vm.Worker implements it.
type Evaluator interface {
	Evaluate(pixel uint8) uint8
}

// ApplyToRegion runs e over every pixel of rect, reading src and writing dst.
// Index 0 is transparent: a source pixel of 0 is not evaluated and a result of
// 0 leaves the destination pixel untouched. rect is clipped to both images.
func ApplyToRegion(e Evaluator, src, dst *image.Paletted, rect image.Rectangle) {
	rect = rect.Intersect(src.Rect).Intersect(dst.Rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		applyRow(e, src, dst, rect.Min.X, rect.Max.X, y)
	}
}

func applyRow(e Evaluator, src, dst *image.Paletted, x0, x1, y int) {
	s := src.Pix[src.PixOffset(x0, y):src.PixOffset(x1, y)]
	d := dst.Pix[dst.PixOffset(x0, y):dst.PixOffset(x1, y)]
	for i, p := range s {
		if p == 0 {
			continue
		}
		if r := e.Evaluate(p); r != 0 {
			d[i] = r
		}
	}
}

// ApplyParallel splits rect into horizontal bands and applies each band with
// its own evaluator from newEvaluator. newEvaluator is called from the calling
// goroutine only. It stops early and returns the context error when ctx ends.
func ApplyParallel(ctx context.Context, newEvaluator func() Evaluator, src, dst *image.Paletted, rect image.Rectangle, bands int) error {
	rect = rect.Intersect(src.Rect).Intersect(dst.Rect)
	if rect.Empty() {
		return ctx.Err()
	}
	bands = max(1, min(bands, rect.Dy()))

	eg, egCtx := errgroup.WithContext(ctx)
	rows := (rect.Dy() + bands - 1) / bands
	for y0 := rect.Min.Y; y0 < rect.Max.Y; y0 += rows {
		y1 := min(y0+rows, rect.Max.Y)
		e := newEvaluator()
		eg.Go(func() error {
			for y := y0; y < y1; y++ {
				if err := egCtx.Err(); err != nil {
					return err
				}
				applyRow(e, src, dst, rect.Min.X, rect.Max.X, y)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Recolor returns a copy of img with e applied to every pixel.
func Recolor(e Evaluator, img *image.Paletted) *image.Paletted {
	out := ClonePaletted(img)
	ApplyToRegion(e, img, out, img.Rect)
	return out
}
