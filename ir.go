package detprep

// The intermediate annotation metadata representation.

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Bbox    [4]float64 // Absolute x, y (top-left corner), width, height in pixels.
	ClassID int        // The source class index.
}

// Width is the object width from a.Bbox.
func (a Annotation) Width() float64 {
	return a.Bbox[2]
}

// Height is the object height from a.Bbox.
func (a Annotation) Height() float64 {
	return a.Bbox[3]
}

// Area is the bounding box area in square pixels.
func (a Annotation) Area() float64 {
	return a.Bbox[2] * a.Bbox[3]
}

// AnnotatedFile is the intermediate representation of image metadata and its annotations.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated image.
	Width       int          // Image width in pixels.
	Height      int          // Image height in pixels.
	Size        int64        // File size in bytes, if known.
	Format      string       // Image format as reported by the decoder, if known.
}

// ID returns the image identifier, i.e. the file name without extension.
func (f AnnotatedFile) ID() string {
	return stem(f.FilePath)
}

// scaleCoords scales all bounding boxes by the given scale factors.
func (f *AnnotatedFile) scaleCoords(width, height float64) {
	for i := range f.Annotations {
		for j := 0; j < 4; j++ {
			if j&1 == 0 {
				f.Annotations[i].Bbox[j] *= width
			} else {
				f.Annotations[i].Bbox[j] *= height
			}
		}
	}
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// NumAnnotations returns the total number of annotations over all files.
func (data AnnotatedFiles) NumAnnotations() int {
	n := 0
	for _, f := range data {
		n += len(f.Annotations)
	}
	return n
}

// Filter removes annotations with a bounding box smaller than minBboxWidth or minBboxHeight.
// Files are kept even if no annotations remain.
func (data AnnotatedFiles) Filter(minBboxWidth, minBboxHeight float64) {
	if minBboxWidth <= 0 && minBboxHeight <= 0 {
		return
	}

	removed := 0
	for i := range data {
		d := &data[i]
		kept := d.Annotations[:0]
		for _, a := range d.Annotations {
			if a.Width() < minBboxWidth || a.Height() < minBboxHeight {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		d.Annotations = kept
	}

	log.Printf("Filtered out %d labels", removed)
}

// ImageOptions configures ProcessImages.
type ImageOptions struct {
	OutDir             string // The directory for the processed images.
	LongerSide         int    // Target length of the longer side (0 keeps the aspect ratio).
	ShorterSide        int    // Target length of the shorter side (0 keeps the aspect ratio).
	DownsamplingFilter string // One of nearest, box, linear, gaussian, lanczos.
	UpsamplingFilter   string
	Encoding           string // jpg or png.
	JPEGQuality        int
}

// ProcessImages resizes all referenced images and writes them to opts.OutDir using the requested
// encoding. Bounding boxes, dimensions and file paths are updated to refer to the resized images.
//
// Images are processed one at a time. An image that cannot be processed is logged and keeps its
// original path and annotations.
func (data AnnotatedFiles) ProcessImages(opts ImageOptions) error {
	if opts.LongerSide <= 0 && opts.ShorterSide <= 0 {
		return nil
	}
	if opts.OutDir == "" {
		return fmt.Errorf("missing image output directory")
	}
	log.Print("Processing images")

	downsample, err := resampleFilter(opts.DownsamplingFilter)
	if err != nil {
		return err
	}
	upsample, err := resampleFilter(opts.UpsamplingFilter)
	if err != nil {
		return err
	}

	// Select the output file extension based on the requested encoding.
	var fileExt string
	switch strings.ToLower(opts.Encoding) {
	case "jpg", "jpeg":
		fileExt = ".jpg"
	case "png":
		fileExt = ".png"
	default:
		return fmt.Errorf("unsupported output encoding %q", opts.Encoding)
	}

	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return fmt.Errorf("cannot create image output directory %q: %w", opts.OutDir, err)
	}

	for i := range data {
		if err := processImage(&data[i], opts, fileExt, downsample, upsample); err != nil {
			log.Printf("Failed to process image %q: %v", data[i].FilePath, err)
		}
	}

	return nil
}

// processImage resizes the image described by f and updates f accordingly.
func processImage(f *AnnotatedFile, opts ImageOptions, fileExt string,
	downsample, upsample imaging.ResampleFilter) error {

	img, err := loadImage(f.FilePath)
	if err != nil {
		return err
	}

	resized, scaleWidth, scaleHeight, err := resizeImage(img, opts.LongerSide, opts.ShorterSide,
		downsample, upsample)
	if err != nil {
		return err
	}

	outPath := filepath.Join(opts.OutDir, f.ID()+fileExt)
	if err := saveImage(outPath, resized, opts.JPEGQuality); err != nil {
		return err
	}

	bounds := resized.Bounds()
	f.FilePath = outPath
	f.Width = bounds.Dx()
	f.Height = bounds.Dy()
	f.Format = strings.TrimPrefix(fileExt, ".")
	if f.Format == "jpg" {
		f.Format = "jpeg"
	}
	if info, err := os.Stat(outPath); err == nil {
		f.Size = info.Size()
	}
	f.scaleCoords(scaleWidth, scaleHeight)

	return nil
}
