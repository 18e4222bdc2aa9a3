package detprep

// YOLO specific functionality.

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// YOLOAnnotation is a single annotation within a YOLO label file. The coordinates are normalised
// to [0, 1] by the image width and height.
type YOLOAnnotation struct {
	ClassID int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// YOLOAnnotatedFile defines the YOLO annotation structure for a single image.
type YOLOAnnotatedFile struct {
	Annotations []YOLOAnnotation
	FilePath    string // The image file.
}

// ToBbox converts the normalised box to an absolute x, y, width, height box with (x, y) the
// top-left corner, for an image of the given pixel dimensions.
func (a YOLOAnnotation) ToBbox(imageWidth, imageHeight int) [4]float64 {
	w := a.Width * float64(imageWidth)
	h := a.Height * float64(imageHeight)
	x := a.CenterX*float64(imageWidth) - w/2
	y := a.CenterY*float64(imageHeight) - h/2
	return [4]float64{x, y, w, h}
}

// yoloFromBbox is the inverse of YOLOAnnotation.ToBbox.
func yoloFromBbox(classID int, bbox [4]float64, imageWidth, imageHeight int) YOLOAnnotation {
	w, h := float64(imageWidth), float64(imageHeight)
	return YOLOAnnotation{
		ClassID: classID,
		CenterX: (bbox[0] + bbox[2]/2) / w,
		CenterY: (bbox[1] + bbox[3]/2) / h,
		Width:   bbox[2] / w,
		Height:  bbox[3] / h,
	}
}

// CollectImages returns the paths of the images in imageDir with one of the extensions exts,
// sorted by file name. If filter is not nil, only images whose stem is in filter are returned.
func CollectImages(imageDir string, exts []string, filter StemSet) ([]string, error) {
	files, err := filesByExtInDir(imageDir, exts)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return files, nil
	}

	selected := files[:0]
	for _, path := range files {
		if filter.Has(stem(path)) {
			selected = append(selected, path)
		}
	}
	return selected, nil
}

// FromYOLO reads the images in imageDir and their YOLO labels from labelDir, where the label file
// of image <stem>.<ext> is <stem>.txt. If filter is not nil, only images with a stem in filter are
// read.
//
// Only a missing or unreadable imageDir is an error. Images without a label file get no
// annotations, images whose header cannot be decoded get the fallback dimensions from cfg, and
// malformed label lines are skipped.
func FromYOLO(labelDir, imageDir string, cfg Config, filter StemSet) (AnnotatedFiles, error) {
	imageFiles, err := CollectImages(imageDir, cfg.ImageExtensions, filter)
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d images to convert from %s", len(imageFiles), imageDir)

	data := make(AnnotatedFiles, 0, len(imageFiles))
	for _, imagePath := range imageFiles {
		header, err := readImageHeader(imagePath, cfg.FallbackWidth, cfg.FallbackHeight)
		if err != nil {
			log.Printf("Error reading image %q, using %dx%d: %v", imagePath, header.Width,
				header.Height, err)
		}

		fileData := AnnotatedFile{
			FilePath: imagePath,
			Width:    header.Width,
			Height:   header.Height,
			Size:     header.Size,
			Format:   header.Format,
		}

		labelPath := filepath.Join(labelDir, stem(imagePath)+".txt")
		yoloAnnotations, err := readYOLOFile(labelPath)
		if err != nil {
			if os.IsNotExist(err) {
				log.Printf("Warning: label file not found for %q", filepath.Base(imagePath))
			} else {
				log.Printf("Error reading label file %q: %v", labelPath, err)
			}
		}

		fileData.Annotations = make([]Annotation, 0, len(yoloAnnotations))
		for _, a := range yoloAnnotations {
			fileData.Annotations = append(fileData.Annotations, Annotation{
				Bbox:    a.ToBbox(fileData.Width, fileData.Height),
				ClassID: a.ClassID,
			})
		}

		data = append(data, fileData)
	}

	return data, nil
}

// readYOLOFile parses all well-formed lines of the YOLO label file at path.
func readYOLOFile(path string) ([]YOLOAnnotation, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	annotations := make([]YOLOAnnotation, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := parseYOLOAnnotation(line)
		if err != nil {
			log.Printf("Skipping line in %q: %v", path, err)
			continue
		}
		annotations = append(annotations, a)
	}

	return annotations, nil
}

// parseYOLOAnnotation parses a line "class center_x center_y width height". The class may be
// written as a float ("0.0"), in which case it is truncated.
func parseYOLOAnnotation(line string) (YOLOAnnotation, error) {
	a := YOLOAnnotation{}

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return a, fmt.Errorf("expected 5 tokens, got %d in %q", len(tokens), line)
	}

	var values [5]float64
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return a, fmt.Errorf("unexpected values in %q: %v", line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, fmt.Errorf("non-finite value in %q", line)
		}
		values[i] = v
	}

	a.ClassID = int(values[0])
	a.CenterX = values[1]
	a.CenterY = values[2]
	a.Width = values[3]
	a.Height = values[4]

	return a, nil
}

// ToYOLO converts the intermediate representation to YOLO format. Files without known image
// dimensions cannot be normalised and are skipped.
func ToYOLO(data []AnnotatedFile) []YOLOAnnotatedFile {
	yoloData := make([]YOLOAnnotatedFile, 0, len(data))
	for _, fileData := range data {
		if fileData.Width <= 0 || fileData.Height <= 0 {
			log.Printf("Unknown image dimensions, skipping %q", fileData.FilePath)
			continue
		}

		yoloFileData := YOLOAnnotatedFile{
			Annotations: make([]YOLOAnnotation, len(fileData.Annotations)),
			FilePath:    fileData.FilePath,
		}
		for i, a := range fileData.Annotations {
			yoloFileData.Annotations[i] = yoloFromBbox(a.ClassID, a.Bbox, fileData.Width,
				fileData.Height)
		}
		yoloData = append(yoloData, yoloFileData)
	}

	return yoloData
}

// WriteYOLO writes data to dirPath, one <stem>.txt label file per element. The directory is
// created if it does not exist.
func WriteYOLO(dirPath string, data []YOLOAnnotatedFile) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", dirPath, err)
	}

	for _, fileData := range data {
		lines := make([]string, len(fileData.Annotations))
		for i, a := range fileData.Annotations {
			lines[i] = fmt.Sprintf("%d %.6f %.6f %.6f %.6f", a.ClassID, a.CenterX, a.CenterY,
				a.Width, a.Height)
		}

		filePath := filepath.Join(dirPath, stem(fileData.FilePath)+".txt")
		if err := writeLines(filePath, lines); err != nil {
			return err
		}
	}

	return nil
}
