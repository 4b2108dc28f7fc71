package sink

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opd-ai/go-cutsim/internal/raster"
)

func testCanvas() *image.Gray {
	g := raster.NewGray(20, 20)
	g.DrawLine(raster.Point{X: 1, Y: 1}, raster.Point{X: 18, Y: 18}, 120, 2)
	return g.Image()
}

func TestTargetPolicy(t *testing.T) {
	p := DefaultTargetPolicy()

	tests := []struct {
		target string
		valid  bool
	}{
		{"", false},
		{"a", false},
		{".png", false},
		{"a.png", true},
		{"out/cut.png", true},
		{"cut.pdf", true},
		{"cut.txt", false},
		{"noextension", false},
		{"ssh://host/tmp/cut.png", true},
		{"ssh://host/tmp/cut", false},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			err := p.Check(tt.target)
			if tt.valid && err != nil {
				t.Errorf("Check(%q) = %v, want nil", tt.target, err)
			}
			if !tt.valid {
				if err == nil {
					t.Errorf("Check(%q) = nil, want error", tt.target)
				} else if !errors.Is(err, ErrInvalidTarget) {
					t.Errorf("Check(%q) error %v does not wrap ErrInvalidTarget", tt.target, err)
				}
			}
			if p.Valid(tt.target) != tt.valid {
				t.Errorf("Valid(%q) = %v, want %v", tt.target, !tt.valid, tt.valid)
			}
		})
	}
}

func TestTargetPolicyLengthOnly(t *testing.T) {
	p := TargetPolicy{MinLength: 5}
	if !p.Valid("abcde") {
		t.Error("five characters should pass without format check")
	}
	if p.Valid("abcd") {
		t.Error("four characters should fail")
	}
}

func TestFileSinkWritesPNG(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "cut.png")

	s := &FileSink{}
	if err := s.Persist(context.Background(), target, testCanvas()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 20 {
		t.Errorf("bounds = %v, want 20x20", img.Bounds())
	}

	entries, _ := os.ReadDir(filepath.Dir(target))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFileSinkUnknownExtension(t *testing.T) {
	s := &FileSink{}
	err := s.Persist(context.Background(), filepath.Join(t.TempDir(), "cut.xyz"), testCanvas())
	if !errors.Is(err, raster.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFileSinkCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := filepath.Join(t.TempDir(), "cut.png")
	s := &FileSink{}
	if err := s.Persist(ctx, target, testCanvas()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("file should not be written with a cancelled context")
	}
}

func TestFileSinkUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &FileSink{}
	if err := s.Persist(context.Background(), filepath.Join(blocker, "cut.png"), testCanvas()); err == nil {
		t.Error("expected error when parent is a regular file")
	}
}

func TestRouterDispatch(t *testing.T) {
	var local, remote []string
	r := &Router{
		Local: SinkFunc(func(_ context.Context, target string, _ image.Image) error {
			local = append(local, target)
			return nil
		}),
		Remote: SinkFunc(func(_ context.Context, target string, _ image.Image) error {
			remote = append(remote, target)
			return nil
		}),
	}

	ctx := context.Background()
	_ = r.Persist(ctx, "cut.png", testCanvas())
	_ = r.Persist(ctx, "ssh://host/cut.png", testCanvas())

	if len(local) != 1 || local[0] != "cut.png" {
		t.Errorf("local = %v", local)
	}
	if len(remote) != 1 || remote[0] != "ssh://host/cut.png" {
		t.Errorf("remote = %v", remote)
	}
}

func TestRouterWithoutRemote(t *testing.T) {
	r := NewRouter(raster.EncodeOptions{}, nil)
	err := r.Persist(context.Background(), "ssh://host/cut.png", testCanvas())
	if !errors.Is(err, ErrNoSink) {
		t.Errorf("err = %v, want ErrNoSink", err)
	}
}

func TestRouterLocalFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "cut.bmp")
	r := NewRouter(raster.EncodeOptions{}, nil)
	if err := r.Persist(context.Background(), target, testCanvas()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("output missing: %v", err)
	}
}
