package detprep

import (
	"fmt"
	"log"
	"path/filepath"
)

// Output formats written by ConvertSubsets.
const (
	FormatCOCO     = "coco"
	FormatTFRecord = "tfrecord"
)

// Subset is a named selection of images. A nil Filter selects all images.
type Subset struct {
	Name   string
	Filter StemSet
}

// PrepareFunc is applied to the annotation data of a subset after it is read and before it is
// written, e.g. to filter labels or resize images. It may modify data in place.
type PrepareFunc func(data AnnotatedFiles) error

// ConvertOptions controls ConvertSubsets. The zero value writes one COCO document per subset.
type ConvertOptions struct {
	Format     string      // FormatCOCO or FormatTFRecord (empty means FormatCOCO).
	Individual bool        // Write one COCO document per image to <outDir>/<subset>/.
	NumShards  int         // The number of TFRecord shard files per subset.
	Prepare    PrepareFunc // Optional.
	PreviewDir string      // Render previews to <PreviewDir>/<subset>/ if set.
}

// Validate checks that the output format is known and supports the selected mode.
func (o ConvertOptions) Validate() error {
	switch o.Format {
	case "", FormatCOCO:
	case FormatTFRecord:
		if o.Individual {
			return &ConfigError{Msg: "individual documents are not supported with format \"tfrecord\""}
		}
	default:
		return &ConfigError{Msg: fmt.Sprintf("unsupported output format %q", o.Format)}
	}
	return nil
}

// LoadSubsets reads <splitDir>/<name>.txt for every name. Without names, a single subset named
// "all" that selects every image is returned.
func LoadSubsets(splitDir string, names []string) ([]Subset, error) {
	if len(names) == 0 {
		return []Subset{{Name: SplitAll}}, nil
	}

	subsets := make([]Subset, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, &ConfigError{Msg: "empty split name"}
		}
		ids, err := ReadSplitFile(SplitFilePath(splitDir, name))
		if err != nil {
			return nil, err
		}
		subsets = append(subsets, Subset{Name: name, Filter: NewStemSet(ids)})
	}
	return subsets, nil
}

// OutputPath returns <outDir>/<prefix>_instances_<subset><ext>.
func OutputPath(outDir, prefix, subset, ext string) string {
	return filepath.Join(outDir, fmt.Sprintf("%s_instances_%s%s", prefix, subset, ext))
}

// Convert reads the YOLO labels in labelDir for the images in imageDir, restricted to filter when
// it is not nil, applies prepare if set, and writes the result as one COCO document to outFile.
//
// The document is built completely in memory before it is written. Identifiers start at 1.
func Convert(imageDir, labelDir, outFile string, cfg Config, filter StemSet,
	prepare PrepareFunc) (COCODataset, error) {

	data, err := readSubset(imageDir, labelDir, cfg, filter, prepare)
	if err != nil {
		return COCODataset{}, err
	}
	return writeCOCODocument(outFile, data, cfg)
}

// ConvertSubsets converts every subset independently and returns the written paths, one per
// subset: the COCO document OutputPath(outDir, cfg.FilePrefix, name, ".json"), the TFRecord file
// OutputPath(outDir, cfg.FilePrefix, name, ".record") or, for individual documents, the directory
// <outDir>/<name>. Every document is numbered independently.
func ConvertSubsets(imageDir, labelDir, outDir string, subsets []Subset, cfg Config,
	opts ConvertOptions) ([]string, error) {

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(subsets))
	total := 0
	for _, s := range subsets {
		data, err := readSubset(imageDir, labelDir, cfg, s.Filter, opts.Prepare)
		if err != nil {
			return paths, fmt.Errorf("conversion of subset %q failed: %w", s.Name, err)
		}

		outPath, err := writeSubset(outDir, s.Name, data, cfg, opts)
		if err != nil {
			return paths, fmt.Errorf("conversion of subset %q failed: %w", s.Name, err)
		}
		paths = append(paths, outPath)

		if opts.PreviewDir != "" {
			if err := RenderPreviews(filepath.Join(opts.PreviewDir, s.Name), data); err != nil {
				return paths, err
			}
		}
		total += len(data)
	}
	log.Print("Total number of converted images: ", total)

	return paths, nil
}

// readSubset reads the YOLO data selected by filter and applies prepare.
func readSubset(imageDir, labelDir string, cfg Config, filter StemSet, prepare PrepareFunc) (
	AnnotatedFiles, error) {

	data, err := FromYOLO(labelDir, imageDir, cfg, filter)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		if err := prepare(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// writeSubset writes data in the format selected by opts and returns the output path.
func writeSubset(outDir, name string, data AnnotatedFiles, cfg Config, opts ConvertOptions) (
	string, error) {

	switch {
	case opts.Format == FormatTFRecord:
		outPath := OutputPath(outDir, cfg.FilePrefix, name, ".record")
		labelMapPath := filepath.Join(outDir, cfg.FilePrefix+"_label_map.pbtxt")
		if err := WriteTFRecord(outPath, labelMapPath, data, cfg.Categories, opts.NumShards); err != nil {
			return "", err
		}
		log.Printf("Successfully wrote %d examples to %s", len(data), outPath)
		return outPath, nil
	case opts.Individual:
		dirPath := filepath.Join(outDir, name)
		return dirPath, WriteCOCOIndividual(dirPath, data, cfg)
	default:
		outPath := OutputPath(outDir, cfg.FilePrefix, name, ".json")
		_, err := writeCOCODocument(outPath, data, cfg)
		return outPath, err
	}
}

func writeCOCODocument(outFile string, data AnnotatedFiles, cfg Config) (COCODataset, error) {
	coco := ToCOCO(data, cfg)
	if err := WriteCOCO(outFile, coco); err != nil {
		return COCODataset{}, err
	}
	log.Printf("Saved COCO JSON with %d images and %d annotations to %s", len(coco.Images),
		len(coco.Annotations), outFile)

	return coco, nil
}
