// Converts YOLO label files to COCO instances documents, optionally one per dataset split, or to
// TFRecord files for the TensorFlow object detection API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/detprep"
)

var (
	imageDirPath   string   // The input directory with the labeled images.
	labelDirPath   string   // The input directory with the YOLO label files.
	outDirPath     string   // The output directory for the converted labels.
	splitNames     []string // The subsets to convert (empty converts all images).
	splitDirPath   string   // The directory holding <split>.txt files.
	configFilePath string   // The optional dataset configuration file.
	minBboxWidth   float64  // The minimum bounding box width.
	minBboxHeight  float64  // The minimum bounding box height.
	imageOptions   detprep.ImageOptions
	convertOptions detprep.ConvertOptions
	config         detprep.Config
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  -images <dir> -labels <dir> -out <dir>"+
			" [-splits train,val,test -split-dir <dir>] [-to coco|tfrecord] [-individual]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Path arguments.
	flag.StringVar(&imageDirPath, "images", "data/images",
		"The `path` to the image input directory")
	flag.StringVar(&labelDirPath, "labels", "data/labels",
		"The `path` to the YOLO label input directory")
	flag.StringVar(&outDirPath, "out", "annotations",
		"The `path` to the output directory")
	splits := flag.String("splits", "",
		"Comma-separated list of splits to export (`name[,...]`, e.g. train,val,test); exports a"+
			" single \"all\" document when empty")
	flag.StringVar(&splitDirPath, "split-dir", "sets",
		"The `path` to the directory containing split files like train.txt")
	flag.StringVar(&configFilePath, "config", "",
		"The `path` to a JSON file with dataset metadata and the category table")

	// Output arguments.
	flag.StringVar(&convertOptions.Format, "to", detprep.FormatCOCO,
		"The output `format` {coco, tfrecord}")
	flag.BoolVar(&convertOptions.Individual, "individual", false,
		"Write one COCO document per image to <out>/<split>/, named after the image (coco only)")
	flag.IntVar(&convertOptions.NumShards, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")
	flag.StringVar(&convertOptions.PreviewDir, "preview", "",
		"The `path` to a directory for preview images with the converted boxes drawn on them")

	// Filter arguments.
	flag.Float64Var(&minBboxWidth, "min-bbox-width", 0,
		"The min. required width in `pixels` for object bounding boxes (before resizing)")
	flag.Float64Var(&minBboxHeight, "min-bbox-height", 0,
		"The min. required height in `pixels` for object bounding boxes (before resizing)")

	// Image processing arguments.
	flag.StringVar(&imageOptions.OutDir, "images-out", "",
		"The `path` to the image output directory (only required when resizing)")
	flag.StringVar(&imageOptions.Encoding, "image-enc", "jpg",
		"The `encoding` for output images {jpg, png}")
	flag.IntVar(&imageOptions.LongerSide, "resize-longer", 0,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	flag.IntVar(&imageOptions.ShorterSide, "resize-shorter", 0,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	flag.StringVar(&imageOptions.DownsamplingFilter, "downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageOptions.UpsamplingFilter, "upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.IntVar(&imageOptions.JPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	if *splits != "" {
		splitNames = strings.Split(*splits, ",")
	}

	if err := convertOptions.Validate(); err != nil {
		printUsageAndExit("Invalid output options: ", err)
	}

	if imageDirPath == "" || labelDirPath == "" || outDirPath == "" {
		printUsageAndExit("Missing image, label or output path argument")
	}
	if minBboxWidth < 0 || minBboxHeight < 0 {
		printUsageAndExit("Invalid minimum bounding box size")
	}
	if (imageOptions.LongerSide > 0 || imageOptions.ShorterSide > 0) && imageOptions.OutDir == "" {
		printUsageAndExit("Missing image output directory path")
	}
	if imageOptions.JPEGQuality < 1 || imageOptions.JPEGQuality > 100 {
		imageOptions.JPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageOptions.JPEGQuality)
	}

	// Clean path arguments.
	imageDirPath = filepath.Clean(imageDirPath)
	labelDirPath = filepath.Clean(labelDirPath)
	outDirPath = filepath.Clean(outDirPath)
	splitDirPath = filepath.Clean(splitDirPath)
	if imageOptions.OutDir != "" {
		imageOptions.OutDir = filepath.Clean(imageOptions.OutDir)
		if imageOptions.OutDir == imageDirPath {
			printUsageAndExit("The image input and output paths cannot be identical")
		}
	}

	// Load the dataset configuration.
	config = detprep.DefaultConfig()
	if configFilePath != "" {
		var err error
		if config, err = detprep.LoadConfig(configFilePath); err != nil {
			printUsageAndExit("Invalid configuration: ", err)
		}
	}
}

func main() {
	subsets, err := detprep.LoadSubsets(splitDirPath, splitNames)
	if err != nil {
		log.Fatal("Failed to read the split files: ", err)
	}

	// Apply filters and process images before writing each subset.
	convertOptions.Prepare = func(data detprep.AnnotatedFiles) error {
		data.Filter(minBboxWidth, minBboxHeight)
		return data.ProcessImages(imageOptions)
	}

	if _, err := detprep.ConvertSubsets(imageDirPath, labelDirPath, outDirPath, subsets, config,
		convertOptions); err != nil {
		log.Fatal("Conversion failed: ", err)
	}
}
