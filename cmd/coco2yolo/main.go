// Converts a COCO instances document back to YOLO label files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sensorable/detprep"
)

var (
	annotationFilePath string // The COCO document to convert.
	labelOutDirPath    string // The output directory for the YOLO label files.
	configFilePath     string // The optional dataset configuration file.
	config             detprep.Config
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  -annotations <file> -labels-out <dir> [-config <file>]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	flag.StringVar(&annotationFilePath, "annotations", "",
		"The `path` to the COCO instances JSON file")
	flag.StringVar(&labelOutDirPath, "labels-out", "",
		"The `path` to the YOLO label output directory")
	flag.StringVar(&configFilePath, "config", "",
		"The `path` to a JSON file with the category table")

	flag.Parse()

	if annotationFilePath == "" || labelOutDirPath == "" {
		printUsageAndExit("Missing annotation or label output path argument")
	}
	annotationFilePath = filepath.Clean(annotationFilePath)
	labelOutDirPath = filepath.Clean(labelOutDirPath)

	config = detprep.DefaultConfig()
	if configFilePath != "" {
		var err error
		if config, err = detprep.LoadConfig(configFilePath); err != nil {
			printUsageAndExit("Invalid configuration: ", err)
		}
	}
}

func main() {
	data, err := detprep.FromCOCO(annotationFilePath, config.Categories)
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}

	if err := detprep.WriteYOLO(labelOutDirPath, detprep.ToYOLO(data)); err != nil {
		log.Fatal("Conversion failed: ", err)
	}

	log.Printf("Successfully wrote labels for %d files to %s (%d boxes)", len(data),
		labelOutDirPath, data.NumAnnotations())
}
