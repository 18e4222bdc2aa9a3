package detprep

// TFRecord object detection specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFRecord converts the intermediate representation for a single file to the feature map of a
// TensorFlow object detection example. Boxes of unmapped classes are left out.
func toTFRecord(fileData AnnotatedFile, table CategoryTable, names map[int]string) (
	TFFeatureMap, error) {

	if fileData.Width <= 0 || fileData.Height <= 0 {
		return nil, fmt.Errorf("unknown image dimensions")
	}

	// Read the image data.
	imgData, err := readFile(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	format := fileData.Format
	if format == "" {
		format, err = formatFromExt(fileData.FilePath)
		if err != nil {
			return nil, err
		}
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = fileData.Height
	f["image/width"] = fileData.Width
	f["image/filename"] = filepath.Base(fileData.FilePath)
	f["image/source_id"] = fileData.ID()
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	width, height := float64(fileData.Width), float64(fileData.Height)
	for _, a := range fileData.Annotations {
		categoryID := table.CategoryID(a.ClassID)
		if categoryID == 0 {
			continue
		}
		xmins = append(xmins, float32(a.Bbox[0]/width))
		ymins = append(ymins, float32(a.Bbox[1]/height))
		xmaxs = append(xmaxs, float32((a.Bbox[0]+a.Bbox[2])/width))
		ymaxs = append(ymaxs, float32((a.Bbox[1]+a.Bbox[3])/height))
		classes = append(classes, names[categoryID])
		classIDs = append(classIDs, int64(categoryID))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// formatFromExt derives the image/format feature from the file extension of path.
func formatFromExt(path string) (string, error) {
	_, _, ext, err := splitPath(path)
	if err != nil {
		return "", err
	}
	format := strings.ToLower(ext)
	if format == "jpg" {
		format = "jpeg"
	}
	return format, nil
}

// WriteTFRecord converts and writes the annotation data to one or more TFRecord files stored under
// recordFilePath (with suffixes added when numShards>1), one example per image.
//
// A label map for the categories in table is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data []AnnotatedFile,
	table CategoryTable, numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	names := make(map[int]string, len(table.Categories))
	for _, c := range table.Categories {
		names[c.ID] = c.Name
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	if err := os.MkdirAll(filepath.Dir(recordFilePath), 0755); err != nil {
		return fmt.Errorf("cannot create directory for %q: %w", recordFilePath, err)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					shardFile = nil
					return err
				}
				shardFile = nil
			}

			// Create the new shard file.
			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		// Convert the file data to an example.
		features, err := toTFRecord(fileData, table, names)
		if err != nil {
			log.Printf("Failed to convert %q: %v", fileData.FilePath, err)
			continue
		}
		tfExample := example.New(features)

		// Write the example.
		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example: %w", err)
		}
	}

	return saveTFRecordLabelMap(labelMapPath, table)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the categories of table to path in the prototxt label map format of
// the TensorFlow object detection API.
func saveTFRecordLabelMap(path string, table CategoryTable) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create directory for %q: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, c := range table.Categories {
		if _, err := fmt.Fprintf(w, "item {\n  id: %d\n  name: %q\n}\n", c.ID, c.Name); err != nil {
			return fmt.Errorf("failed to write the label map %q: %v", path, err)
		}
	}
	return w.Flush()
}
