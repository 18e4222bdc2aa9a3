package detprep

// COCO specific functionality.

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"path/filepath"
)

// COCOLicenseRef is the license embedded in the info block of single image documents.
type COCOLicenseRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// COCOInfo is the dataset description.
type COCOInfo struct {
	Description string          `json:"description"`
	Version     string          `json:"version"`
	Year        int             `json:"year"`
	Contributor string          `json:"contributor"`
	DateCreated string          `json:"date_created,omitempty"`
	URL         string          `json:"url"`
	Source      string          `json:"source,omitempty"`
	License     *COCOLicenseRef `json:"license,omitempty"`
}

// COCOLicense is an entry of the licenses list.
type COCOLicense struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// COCOImage is an entry of the images list. Size and Format are only set for single image
// documents.
type COCOImage struct {
	ID           int    `json:"id"`
	FileName     string `json:"file_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	License      int    `json:"license"`
	DateCaptured string `json:"date_captured"`
	Size         int64  `json:"size,omitempty"`
	Format       string `json:"format,omitempty"`
}

// COCOAnnotation is a bounding box only entry of the annotations list.
type COCOAnnotation struct {
	ID           int         `json:"id"`
	ImageID      int         `json:"image_id"`
	CategoryID   int         `json:"category_id"`
	Bbox         [4]float64  `json:"bbox"` // x, y, width, height with (x, y) the top-left corner.
	Area         float64     `json:"area"`
	IsCrowd      int         `json:"iscrowd"`
	Segmentation [][]float64 `json:"segmentation"`
}

// COCOCategory is an entry of the categories list.
type COCOCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// COCODataset is a COCO style instances document.
type COCODataset struct {
	Info        COCOInfo         `json:"info"`
	Licenses    []COCOLicense    `json:"licenses,omitempty"`
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// newCOCODataset returns an empty document with the metadata from cfg.
func newCOCODataset(cfg Config) COCODataset {
	categories := make([]COCOCategory, len(cfg.Categories.Categories))
	copy(categories, cfg.Categories.Categories)
	licenses := make([]COCOLicense, len(cfg.Licenses))
	copy(licenses, cfg.Licenses)

	return COCODataset{
		Info:        cfg.Info,
		Licenses:    licenses,
		Images:      []COCOImage{},
		Annotations: []COCOAnnotation{},
		Categories:  categories,
	}
}

// ToCOCO converts the intermediate representation to a COCO document.
//
// Images are numbered from 1 in the order of data, annotations from 1 in the order in which they
// are encountered. Annotations whose class has no category in cfg.Categories are dropped.
func ToCOCO(data []AnnotatedFile, cfg Config) COCODataset {
	coco := newCOCODataset(cfg)
	coco.Images = make([]COCOImage, 0, len(data))

	dropped := 0
	nextAnnotationID := 1
	for i, fileData := range data {
		imageID := i + 1
		coco.Images = append(coco.Images, COCOImage{
			ID:           imageID,
			FileName:     filepath.Base(fileData.FilePath),
			Width:        fileData.Width,
			Height:       fileData.Height,
			License:      cfg.ImageLicense,
			DateCaptured: cfg.DateCaptured,
		})

		for _, a := range fileData.Annotations {
			categoryID := cfg.Categories.CategoryID(a.ClassID)
			if categoryID == 0 {
				dropped++
				continue
			}
			coco.Annotations = append(coco.Annotations, cocoAnnotation(nextAnnotationID, imageID,
				categoryID, a))
			nextAnnotationID++
		}
	}
	if dropped > 0 {
		log.Printf("Dropped %d labels with unmapped classes", dropped)
	}

	return coco
}

// ToCOCOIndividual converts a single annotated image to its own COCO document, including the file
// size and format of the image. Identifiers are numbered from 1 within the document.
func ToCOCOIndividual(fileData AnnotatedFile, cfg Config) COCODataset {
	coco := newCOCODataset(cfg)
	coco.Licenses = nil
	if coco.Info.License == nil && len(cfg.Licenses) > 0 {
		coco.Info.License = &COCOLicenseRef{Name: cfg.Licenses[0].Name, URL: cfg.Licenses[0].URL}
	}

	format := fileData.Format
	if format == "" {
		format = "unknown"
	}
	coco.Images = []COCOImage{{
		ID:           1,
		FileName:     filepath.Base(fileData.FilePath),
		Width:        fileData.Width,
		Height:       fileData.Height,
		License:      cfg.ImageLicense,
		DateCaptured: cfg.DateCaptured,
		Size:         fileData.Size,
		Format:       format,
	}}

	for _, a := range fileData.Annotations {
		categoryID := cfg.Categories.CategoryID(a.ClassID)
		if categoryID == 0 {
			continue
		}
		coco.Annotations = append(coco.Annotations, cocoAnnotation(len(coco.Annotations)+1, 1,
			categoryID, a))
	}

	return coco
}

func cocoAnnotation(id, imageID, categoryID int, a Annotation) COCOAnnotation {
	return COCOAnnotation{
		ID:           id,
		ImageID:      imageID,
		CategoryID:   categoryID,
		Bbox:         a.Bbox,
		Area:         a.Area(),
		IsCrowd:      0,
		Segmentation: [][]float64{},
	}
}

// WriteCOCO writes the COCO document to outFile, creating the parent directory if necessary.
func WriteCOCO(outFile string, data COCODataset) error {
	enc, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(outFile, enc)
}

// WriteCOCOIndividual writes one COCO document per image to dirPath, named <stem>.json.
func WriteCOCOIndividual(dirPath string, data []AnnotatedFile, cfg Config) error {
	for i, fileData := range data {
		log.Printf("Processing %d/%d: %s", i+1, len(data), filepath.Base(fileData.FilePath))

		outPath := filepath.Join(dirPath, fileData.ID()+".json")
		coco := ToCOCOIndividual(fileData, cfg)
		if err := WriteCOCO(outPath, coco); err != nil {
			return err
		}
		log.Printf("Generated: %s with %d annotations", outPath, len(coco.Annotations))
	}

	return nil
}

// FromCOCO reads and parses the COCO document at path. Category ids are mapped back to class
// indices through table; annotations with an unknown image or category are skipped.
func FromCOCO(path string, table CategoryTable) (AnnotatedFiles, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var coco COCODataset
	if err := json.Unmarshal(enc, &coco); err != nil {
		return nil, fmt.Errorf("failed to parse COCO input from %q: %v", path, err)
	}

	// Convert to the intermediate representation.
	data := make(AnnotatedFiles, 0, len(coco.Images))
	imageIndex := make(map[int]int, len(coco.Images))
	for _, img := range coco.Images {
		if _, dup := imageIndex[img.ID]; dup {
			log.Printf("Duplicate image id %d, skipping %q", img.ID, img.FileName)
			continue
		}
		imageIndex[img.ID] = len(data)
		data = append(data, AnnotatedFile{
			FilePath: img.FileName,
			Width:    img.Width,
			Height:   img.Height,
			Size:     img.Size,
			Format:   img.Format,
		})
	}

	for _, a := range coco.Annotations {
		idx, found := imageIndex[a.ImageID]
		if !found {
			log.Printf("Annotation %d references unknown image %d, skipping", a.ID, a.ImageID)
			continue
		}
		classID, found := table.ClassID(a.CategoryID)
		if !found {
			log.Printf("Annotation %d has unknown category %d, skipping", a.ID, a.CategoryID)
			continue
		}
		data[idx].Annotations = append(data[idx].Annotations, Annotation{
			Bbox:    a.Bbox,
			ClassID: classID,
		})
	}

	return data, nil
}
