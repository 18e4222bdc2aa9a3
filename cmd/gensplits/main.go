// Generates reproducible train/val/test split lists for a directory of images.
//
// Writes train.txt, val.txt, test.txt, train_val.txt and all.txt with one image id (the file name
// without extension) per line.
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
	imageDirPath   string              // The input directory with the images.
	outDirPath     string              // The output directory for the split lists.
	configFilePath string              // The optional dataset configuration file.
	ratios         detprep.SplitRatios // The requested subset proportions.
	seed           int64               // The seed for the shuffle.
	config         detprep.Config
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  -images <dir> -out <dir> [-train 0.8 -val 0.1 -test 0.1]"+
			" [-seed 42]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	flag.StringVar(&imageDirPath, "images", "data/images",
		"The `path` to the image input directory")
	flag.StringVar(&outDirPath, "out", "sets", "The `path` to the output directory")
	flag.StringVar(&configFilePath, "config", "",
		"The `path` to a JSON file with the dataset configuration (image extensions)")
	flag.Float64Var(&ratios.Train, "train", 0.8, "The fraction of images for the train set")
	flag.Float64Var(&ratios.Val, "val", 0.1, "The fraction of images for the val set")
	flag.Float64Var(&ratios.Test, "test", 0.1, "The fraction of images for the test set")
	flag.Int64Var(&seed, "seed", 42, "The random seed for reproducible splits")

	flag.Parse()

	if err := ratios.Validate(); err != nil {
		printUsageAndExit("Invalid split ratios: ", err)
	}
	if imageDirPath == "" || outDirPath == "" {
		printUsageAndExit("Missing image or output path argument")
	}
	imageDirPath = filepath.Clean(imageDirPath)
	outDirPath = filepath.Clean(outDirPath)

	config = detprep.DefaultConfig()
	if configFilePath != "" {
		var err error
		if config, err = detprep.LoadConfig(configFilePath); err != nil {
			printUsageAndExit("Invalid configuration: ", err)
		}
	}
}

func main() {
	ids, err := detprep.CollectImageIDs(imageDirPath, config.ImageExtensions)
	if err != nil {
		log.Fatal("Failed to list the images: ", err)
	}

	splits, err := detprep.Split(ids, ratios, seed)
	if err != nil {
		log.Fatal("Failed to split the dataset: ", err)
	}

	if err := detprep.WriteSplits(outDirPath, splits); err != nil {
		log.Fatal("Failed to write the split files: ", err)
	}

	log.Printf("Wrote %d train, %d val, %d test (total %d) to %s", len(splits.Train),
		len(splits.Val), len(splits.Test), len(splits.All), outDirPath)
}
