package detprep

// Deterministic train/val/test splits.

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Names of the subsets written by WriteSplits.
const (
	SplitTrain    = "train"
	SplitVal      = "val"
	SplitTest     = "test"
	SplitTrainVal = "train_val"
	SplitAll      = "all"
)

// ratioTolerance is the allowed deviation of the ratio sum from 1.
const ratioTolerance = 1e-6

// ErrInvalidRatios is returned when the split ratios are negative or do not add up to 1.
var ErrInvalidRatios = errors.New("train+val+test ratios must sum to 1.0")

// SplitRatios are the requested subset proportions.
type SplitRatios struct {
	Train float64
	Val   float64
	Test  float64
}

// Validate checks that no ratio is negative and that the ratios add up to 1.
func (r SplitRatios) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return &ConfigError{
			Msg: fmt.Sprintf("negative split ratio in %g/%g/%g", r.Train, r.Val, r.Test),
			Err: ErrInvalidRatios,
		}
	}
	if sum := r.Train + r.Val + r.Test; math.Abs(sum-1) > ratioTolerance {
		return &ConfigError{Msg: fmt.Sprintf("split ratios sum to %g", sum), Err: ErrInvalidRatios}
	}
	return nil
}

// Splits is a partition of image ids into disjoint subsets.
type Splits struct {
	Train []string
	Val   []string
	Test  []string
	All   []string // All ids in input order.
}

// TrainVal returns the train ids followed by the val ids.
func (s Splits) TrainVal() []string {
	tv := make([]string, 0, len(s.Train)+len(s.Val))
	tv = append(tv, s.Train...)
	return append(tv, s.Val...)
}

// Split shuffles ids with a generator seeded by seed and partitions them into train, val and test.
//
// The train subset receives round(n*Train) ids and the val subset round(n*Val) ids, both rounded
// half to even and clamped so that train+val never exceeds n. The test subset receives the rest.
// The same ids, ratios and seed always produce the same partition.
func Split(ids []string, ratios SplitRatios, seed int64) (Splits, error) {
	if err := ratios.Validate(); err != nil {
		return Splits{}, err
	}

	all := make([]string, len(ids))
	copy(all, ids)

	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nTrain := clamp(int(math.RoundToEven(float64(n)*ratios.Train)), 0, n)
	nVal := clamp(int(math.RoundToEven(float64(n)*ratios.Val)), 0, n-nTrain)

	return Splits{
		Train: shuffled[:nTrain:nTrain],
		Val:   shuffled[nTrain : nTrain+nVal : nTrain+nVal],
		Test:  shuffled[nTrain+nVal:],
		All:   all,
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CollectImageIDs returns the sorted, unique stems of the images in imageDir with one of the
// extensions exts.
func CollectImageIDs(imageDir string, exts []string) ([]string, error) {
	files, err := filesByExtInDir(imageDir, exts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, path := range files {
		id := stem(path)
		if prev, dup := seen[id]; dup {
			log.Printf("Duplicate image id %q for %q and %q, keeping one", id, prev, path)
			continue
		}
		seen[id] = path
		ids = append(ids, id)
	}
	// Files are sorted by name; sorting by stem may differ ("a.b.jpg" vs "a.jpg").
	sort.Strings(ids)

	return ids, nil
}

// WriteSplits writes train.txt, val.txt, test.txt, train_val.txt and all.txt to dirPath, one id
// per line.
func WriteSplits(dirPath string, s Splits) error {
	lists := []struct {
		name string
		ids  []string
	}{
		{SplitTrain, s.Train},
		{SplitVal, s.Val},
		{SplitTest, s.Test},
		{SplitTrainVal, s.TrainVal()},
		{SplitAll, s.All},
	}
	for _, l := range lists {
		if err := writeLines(SplitFilePath(dirPath, l.name), l.ids); err != nil {
			return err
		}
	}
	return nil
}

// SplitFilePath returns the path of the list file for the named subset.
func SplitFilePath(dirPath, name string) string {
	return filepath.Join(dirPath, name+".txt")
}

// ReadSplitFile reads the ids listed in the split file at path, ignoring blank lines. A missing
// file yields an empty list and a nil error, but is logged.
func ReadSplitFile(path string) ([]string, error) {
	lines, err := readLines(path)
	if os.IsNotExist(err) {
		log.Printf("Warning: split file %q not found", path)
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("cannot read split file %q: %w", path, err)
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// StemSet is a set of image ids. A nil StemSet is used to mean "no restriction" by the readers.
type StemSet map[string]struct{}

// NewStemSet returns a non-nil set containing ids.
func NewStemSet(ids []string) StemSet {
	s := make(StemSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s StemSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
