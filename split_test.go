package detprep

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("img_%04d", i)
	}
	return ids
}

func TestSplitPartition(t *testing.T) {
	ratios := []SplitRatios{
		{Train: 0.8, Val: 0.1, Test: 0.1},
		{Train: 0.7, Val: 0.15, Test: 0.15},
		{Train: 1, Val: 0, Test: 0},
		{Train: 0, Val: 0, Test: 1},
		{Train: 0.5, Val: 0.5, Test: 0},
		{Train: 1.0 / 3, Val: 1.0 / 3, Test: 1.0 / 3},
	}

	for _, r := range ratios {
		for _, n := range []int{0, 1, 2, 3, 5, 7, 10, 33, 100} {
			for _, seed := range []int64{0, 1, 42} {
				ids := makeIDs(n)
				s, err := Split(ids, r, seed)
				if err != nil {
					t.Fatalf("Split(%d, %+v, %d) failed: %v", n, r, seed, err)
				}

				if len(s.Train)+len(s.Val)+len(s.Test) != n {
					t.Errorf("Split(%d, %+v, %d): sizes %d+%d+%d != %d", n, r, seed,
						len(s.Train), len(s.Val), len(s.Test), n)
				}

				seen := make(map[string]int, n)
				for _, list := range [][]string{s.Train, s.Val, s.Test} {
					for _, id := range list {
						seen[id]++
					}
				}
				for _, id := range ids {
					if seen[id] != 1 {
						t.Errorf("Split(%d, %+v, %d): %q appears %d times", n, r, seed, id, seen[id])
					}
				}
				if len(seen) != n {
					t.Errorf("Split(%d, %+v, %d): unknown ids in output", n, r, seed)
				}
				if !reflect.DeepEqual(s.All, ids) {
					t.Errorf("Split(%d, %+v, %d): All = %v", n, r, seed, s.All)
				}
			}
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	ids := makeIDs(100)
	r := SplitRatios{Train: 0.8, Val: 0.1, Test: 0.1}

	first, err := Split(ids, r, 42)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Split(ids, r, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs and seed produced different splits")
	}

	other, err := Split(ids, r, 43)
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(first.Train, other.Train) {
		t.Error("different seeds produced the same train list")
	}

	// The train list is shuffled, not a prefix of the input.
	if reflect.DeepEqual(first.Train, ids[:80]) {
		t.Error("train list is not shuffled")
	}
}

func TestSplitDoesNotModifyInput(t *testing.T) {
	ids := makeIDs(20)
	orig := append([]string(nil), ids...)
	s, err := Split(ids, SplitRatios{Train: 0.5, Val: 0.25, Test: 0.25}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, orig) {
		t.Error("Split modified its input")
	}

	// Appending to a subset must not overwrite its neighbour.
	val0 := s.Val[0]
	_ = append(s.Train, "x")
	if s.Val[0] != val0 {
		t.Error("subsets share capacity")
	}
}

func TestSplitSizes(t *testing.T) {
	tests := []struct {
		n                int
		ratios           SplitRatios
		train, val, test int
	}{
		{n: 10, ratios: SplitRatios{0.8, 0.1, 0.1}, train: 8, val: 1, test: 1},
		{n: 100, ratios: SplitRatios{0.7, 0.2, 0.1}, train: 70, val: 20, test: 10},
		// Half is rounded to even.
		{n: 5, ratios: SplitRatios{0.5, 0.5, 0}, train: 2, val: 2, test: 1},
		{n: 7, ratios: SplitRatios{0.5, 0.5, 0}, train: 4, val: 3, test: 0},
		// round(1.5)+round(1.5) exceeds 3: val is clamped.
		{n: 3, ratios: SplitRatios{0.5, 0.5, 0}, train: 2, val: 1, test: 0},
		{n: 1, ratios: SplitRatios{0.8, 0.1, 0.1}, train: 1, val: 0, test: 0},
	}

	for _, tt := range tests {
		s, err := Split(makeIDs(tt.n), tt.ratios, 42)
		if err != nil {
			t.Fatalf("Split(%d, %+v) failed: %v", tt.n, tt.ratios, err)
		}
		if len(s.Train) != tt.train || len(s.Val) != tt.val || len(s.Test) != tt.test {
			t.Errorf("Split(%d, %+v) sizes = %d/%d/%d, want %d/%d/%d", tt.n, tt.ratios,
				len(s.Train), len(s.Val), len(s.Test), tt.train, tt.val, tt.test)
		}
	}
}

func TestSplitInvalidRatios(t *testing.T) {
	tests := []SplitRatios{
		{Train: 0.8, Val: 0.1, Test: 0.2},
		{Train: 0.5, Val: 0.1, Test: 0.1},
		{Train: 1.2, Val: -0.1, Test: -0.1},
	}

	for _, r := range tests {
		_, err := Split(makeIDs(10), r, 42)
		if err == nil {
			t.Errorf("Split(%+v): expected an error", r)
			continue
		}
		if !errors.Is(err, ErrInvalidRatios) {
			t.Errorf("Split(%+v): error %v does not wrap ErrInvalidRatios", r, err)
		}
		if !IsConfigError(err) {
			t.Errorf("Split(%+v): error %v is not a config error", r, err)
		}
	}

	// Within the tolerance.
	if err := (SplitRatios{Train: 0.8, Val: 0.1, Test: 0.1 + 5e-7}).Validate(); err != nil {
		t.Errorf("unexpected error within tolerance: %v", err)
	}
}

func TestWriteSplits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sets")
	s := Splits{
		Train: []string{"c", "a"},
		Val:   []string{"d"},
		Test:  []string{"b"},
		All:   []string{"a", "b", "c", "d"},
	}

	if err := WriteSplits(dir, s); err != nil {
		t.Fatalf("WriteSplits failed: %v", err)
	}

	want := map[string]string{
		"train.txt":     "c\na\n",
		"val.txt":       "d\n",
		"test.txt":      "b\n",
		"train_val.txt": "c\na\nd\n",
		"all.txt":       "a\nb\nc\nd\n",
	}
	for name, content := range want {
		if got := readTestFile(t, filepath.Join(dir, name)); got != content {
			t.Errorf("%s = %q, want %q", name, got, content)
		}
	}

	ids, err := ReadSplitFile(SplitFilePath(dir, SplitTrainVal))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"c", "a", "d"}) {
		t.Errorf("ReadSplitFile = %v", ids)
	}
}

func TestWriteSplitsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := WriteSplits(dir, Splits{}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{SplitTrain, SplitVal, SplitTest, SplitTrainVal, SplitAll} {
		info, err := os.Stat(SplitFilePath(dir, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if info.Size() != 0 {
			t.Errorf("%s has %d bytes, want 0", name, info.Size())
		}
	}
}

func TestReadSplitFileMissing(t *testing.T) {
	ids, err := ReadSplitFile(filepath.Join(t.TempDir(), "val.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("ids = %v, want an empty list", ids)
	}
}

func TestCollectImageIDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "a.jpg", "c.jpeg", "notes.txt"} {
		writeTestFile(t, dir, name, "x")
	}

	ids, err := CollectImageIDs(dir, DefaultConfig().ImageExtensions)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("ids are not sorted")
	}

	if _, err := CollectImageIDs(filepath.Join(dir, "missing"), nil); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
