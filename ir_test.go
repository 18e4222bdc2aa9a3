package detprep

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestResizeImage(t *testing.T) {
	tests := []struct {
		name                  string
		width, height         int
		longer, shorter       int
		wantWidth, wantHeight int
	}{
		{name: "portrait longer", width: 100, height: 200, longer: 100, wantWidth: 50, wantHeight: 100},
		{name: "landscape shorter", width: 200, height: 100, shorter: 200, wantWidth: 400, wantHeight: 200},
		{name: "both", width: 30, height: 10, longer: 60, shorter: 60, wantWidth: 60, wantHeight: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := imaging.New(tt.width, tt.height, color.NRGBA{0, 0, 0, 255})
			resized, sw, sh, err := resizeImage(img, tt.longer, tt.shorter, imaging.Box, imaging.Linear)
			if err != nil {
				t.Fatalf("resizeImage failed: %v", err)
			}
			b := resized.Bounds()
			if b.Dx() != tt.wantWidth || b.Dy() != tt.wantHeight {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantWidth, tt.wantHeight)
			}
			if !almostEqual(sw, float64(tt.wantWidth)/float64(tt.width)) ||
				!almostEqual(sh, float64(tt.wantHeight)/float64(tt.height)) {
				t.Errorf("scale = %v, %v", sw, sh)
			}
		})
	}
}

func TestResampleFilter(t *testing.T) {
	for _, name := range []string{"nearest", "box", "linear", "gaussian", "lanczos"} {
		if _, err := resampleFilter(name); err != nil {
			t.Errorf("resampleFilter(%q) failed: %v", name, err)
		}
	}
	if _, err := resampleFilter("cubic"); err == nil {
		t.Error("expected an error for an unknown filter")
	}
}

func TestReadImageHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "a.png", 30, 20)

	h, err := readImageHeader(path, 640, 640)
	if err != nil {
		t.Fatalf("readImageHeader failed: %v", err)
	}
	if h.Width != 30 || h.Height != 20 || h.Format != "png" || h.Size <= 0 {
		t.Errorf("header = %+v", h)
	}

	bad := writeTestFile(t, dir, "b.jpg", "garbage")
	h, err = readImageHeader(bad, 640, 480)
	if err == nil {
		t.Error("expected a decode error")
	}
	if h.Width != 640 || h.Height != 480 || h.Size != int64(len("garbage")) {
		t.Errorf("fallback header = %+v", h)
	}
}

func TestFilter(t *testing.T) {
	data := AnnotatedFiles{
		{
			FilePath: "a.jpg",
			Annotations: []Annotation{
				{Bbox: [4]float64{0, 0, 5, 50}},
				{Bbox: [4]float64{0, 0, 50, 50}},
				{Bbox: [4]float64{0, 0, 50, 5}},
			},
		},
		{FilePath: "b.jpg", Annotations: []Annotation{{Bbox: [4]float64{0, 0, 1, 1}}}},
	}

	data.Filter(10, 10)

	if len(data) != 2 {
		t.Fatalf("files must be kept, got %d", len(data))
	}
	if len(data[0].Annotations) != 1 || data[0].Annotations[0].Area() != 2500 {
		t.Errorf("a annotations = %+v", data[0].Annotations)
	}
	if len(data[1].Annotations) != 0 {
		t.Errorf("b annotations = %+v", data[1].Annotations)
	}
	if data.NumAnnotations() != 1 {
		t.Errorf("NumAnnotations = %d, want 1", data.NumAnnotations())
	}
}

func TestProcessImages(t *testing.T) {
	imageDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "resized")
	data := AnnotatedFiles{
		{
			FilePath:    writeTestImage(t, imageDir, "a.png", 100, 200),
			Width:       100,
			Height:      200,
			Format:      "png",
			Annotations: []Annotation{{Bbox: [4]float64{40, 20, 20, 80}}},
		},
		{FilePath: filepath.Join(imageDir, "missing.png"), Width: 10, Height: 10},
	}

	opts := ImageOptions{
		OutDir:             outDir,
		LongerSide:         100,
		DownsamplingFilter: "box",
		UpsamplingFilter:   "linear",
		Encoding:           "jpg",
		JPEGQuality:        90,
	}
	if err := data.ProcessImages(opts); err != nil {
		t.Fatalf("ProcessImages failed: %v", err)
	}

	a := data[0]
	if a.FilePath != filepath.Join(outDir, "a.jpg") || a.Format != "jpeg" || a.Size <= 0 {
		t.Errorf("processed file = %+v", a)
	}
	if a.Width != 50 || a.Height != 100 {
		t.Errorf("size = %dx%d, want 50x100", a.Width, a.Height)
	}
	if !bboxAlmostEqual(a.Annotations[0].Bbox, [4]float64{20, 10, 10, 40}) {
		t.Errorf("bbox = %v", a.Annotations[0].Bbox)
	}
	if h, err := readImageHeader(a.FilePath, 0, 0); err != nil || h.Width != 50 || h.Format != "jpeg" {
		t.Errorf("written image header = %+v, %v", h, err)
	}

	// The image that could not be loaded is left untouched.
	if data[1].FilePath != filepath.Join(imageDir, "missing.png") || data[1].Width != 10 {
		t.Errorf("unprocessed file = %+v", data[1])
	}
}

func TestProcessImagesOptions(t *testing.T) {
	data := AnnotatedFiles{{FilePath: "a.png", Width: 10, Height: 10}}

	// Nothing to do without target sizes.
	if err := data.ProcessImages(ImageOptions{}); err != nil || data[0].FilePath != "a.png" {
		t.Errorf("ProcessImages without sizes: %v, %+v", err, data[0])
	}

	base := ImageOptions{
		OutDir:             t.TempDir(),
		LongerSide:         10,
		DownsamplingFilter: "box",
		UpsamplingFilter:   "linear",
		Encoding:           "png",
	}
	tests := map[string]func(*ImageOptions){
		"no output dir":  func(o *ImageOptions) { o.OutDir = "" },
		"bad encoding":   func(o *ImageOptions) { o.Encoding = "gif" },
		"bad downsample": func(o *ImageOptions) { o.DownsamplingFilter = "cubic" },
		"bad upsample":   func(o *ImageOptions) { o.UpsamplingFilter = "" },
	}
	for name, modify := range tests {
		opts := base
		modify(&opts)
		if err := data.ProcessImages(opts); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
