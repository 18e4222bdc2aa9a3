package detprep

// Preview images with the converted bounding boxes drawn on top.

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/llgcode/draw2d/draw2dimg"
)

// boxColor is the stroke colour of preview boxes.
var boxColor = color.RGBA{255, 255, 0, 255}

// RenderPreviews draws the bounding boxes of every file in data onto a copy of its image and saves
// it to outDir as <stem>.png. Images that cannot be loaded are logged and skipped.
func RenderPreviews(outDir string, data []AnnotatedFile) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("cannot create preview directory %q: %w", outDir, err)
	}

	rendered := 0
	for _, fileData := range data {
		img, err := loadImage(fileData.FilePath)
		if err != nil {
			log.Printf("Cannot render preview for %q: %v", fileData.FilePath, err)
			continue
		}

		canvas := drawBoundingBoxes(img, fileData)
		outPath := filepath.Join(outDir, fileData.ID()+".png")
		if err := saveImage(outPath, canvas, 90); err != nil {
			return fmt.Errorf("cannot write preview %q: %w", outPath, err)
		}
		rendered++
	}

	log.Printf("Rendered %d previews to %s", rendered, outDir)
	return nil
}

// drawBoundingBoxes returns an RGBA copy of img with the boxes of fileData stroked on it. Boxes are
// scaled from the recorded dimensions to the actual image size.
func drawBoundingBoxes(img image.Image, fileData AnnotatedFile) *image.RGBA {
	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	scaleX, scaleY := 1.0, 1.0
	if fileData.Width > 0 && fileData.Height > 0 {
		scaleX = float64(bounds.Dx()) / float64(fileData.Width)
		scaleY = float64(bounds.Dy()) / float64(fileData.Height)
	}

	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetStrokeColor(boxColor)
	gc.SetLineWidth(math.Max(1, float64(minInt(bounds.Dx(), bounds.Dy()))/200))

	for _, a := range fileData.Annotations {
		x1 := a.Bbox[0] * scaleX
		y1 := a.Bbox[1] * scaleY
		x2 := (a.Bbox[0] + a.Bbox[2]) * scaleX
		y2 := (a.Bbox[1] + a.Bbox[3]) * scaleY

		gc.BeginPath()
		gc.MoveTo(x1, y1)
		gc.LineTo(x2, y1)
		gc.LineTo(x2, y2)
		gc.LineTo(x1, y2)
		gc.Close()
		gc.Stroke()
	}

	return canvas
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
