// Package visualization turns MPR reslice matrices into 2D greyscale images
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sudomakeinstall/cardio/internal/models"
	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

// SliceOptions controls how a plane is sampled and displayed
type SliceOptions struct {
	// Width and Height of the sampled image in pixels. Zero picks a size that
	// covers the volume diagonal.
	Width  int
	Height int

	// PixelSpacing in mm. Zero uses the smallest voxel spacing.
	PixelSpacing float64

	// Window and Level map intensities to grey. A window of zero or less is a
	// threshold at Level.
	Window float64
	Level  float64
}

// Viewer samples reslice planes through one 3D image
type Viewer struct {
	image *models.Image
}

// NewViewer creates a viewer over img
func NewViewer(img *models.Image) *Viewer {
	return &Viewer{image: img}
}

func (v *Viewer) resolve(opts SliceOptions) SliceOptions {
	if opts.PixelSpacing <= 0 {
		opts.PixelSpacing = math.Min(v.image.Spacing[0], math.Min(v.image.Spacing[1], v.image.Spacing[2]))
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		b := v.image.Bounds()
		diag := math.Sqrt(sq(b[1]-b[0]) + sq(b[3]-b[2]) + sq(b[5]-b[4]))
		n := int(math.Ceil(diag/opts.PixelSpacing)) + 1
		if opts.Width <= 0 {
			opts.Width = n
		}
		if opts.Height <= 0 {
			opts.Height = n
		}
	}
	return opts
}

// ExtractSlice samples the plane of a 4x4 reslice matrix with nearest
// neighbour interpolation. The plane's x axis is the first column of the
// matrix and its y axis the second; the origin column lands at the image
// centre and y increases towards the top row. Points outside the volume are
// black.
func (v *Viewer) ExtractSlice(reslice mat.Matrix, opts SliceOptions) (*image.Gray16, error) {
	if r, c := reslice.Dims(); r != 4 || c != 4 {
		return nil, fmt.Errorf("reslice matrix must be 4x4, got %dx%d", r, c)
	}
	opts = v.resolve(opts)

	rot := orientation.ResliceRotation(reslice)
	origin := orientation.ResliceOrigin(reslice)
	xAxis := r3.Vec{X: rot.At(0, 0), Y: rot.At(1, 0), Z: rot.At(2, 0)}
	yAxis := r3.Vec{X: rot.At(0, 1), Y: rot.At(1, 1), Z: rot.At(2, 1)}

	// Index space is affine in physical space, so one corner and two steps
	// are enough to walk the whole plane
	s := opts.PixelSpacing
	corner := r3.Add(origin, r3.Add(
		r3.Scale(-s*float64(opts.Width-1)/2, xAxis),
		r3.Scale(s*float64(opts.Height-1)/2, yAxis),
	))
	idx0, err := v.image.PhysicalToIndex(corner)
	if err != nil {
		return nil, err
	}
	idxX, _ := v.image.PhysicalToIndex(r3.Add(corner, r3.Scale(s, xAxis)))
	idxY, _ := v.image.PhysicalToIndex(r3.Add(corner, r3.Scale(-s, yAxis)))
	var du, dv [3]float64
	for a := 0; a < 3; a++ {
		du[a] = idxX[a] - idx0[a]
		dv[a] = idxY[a] - idx0[a]
	}

	img := image.NewGray16(image.Rect(0, 0, opts.Width, opts.Height))
	for row := 0; row < opts.Height; row++ {
		for col := 0; col < opts.Width; col++ {
			var ijk [3]int
			inside := true
			for a := 0; a < 3; a++ {
				ijk[a] = int(math.Round(idx0[a] + float64(col)*du[a] + float64(row)*dv[a]))
				if ijk[a] < 0 || ijk[a] >= v.image.Size[a] {
					inside = false
				}
			}
			if !inside {
				continue
			}
			value := v.image.At(ijk[0], ijk[1], ijk[2])
			img.SetGray16(col, row, color.Gray16{Y: windowValue(value, opts.Window, opts.Level)})
		}
	}
	return img, nil
}

// windowValue maps an intensity into 16-bit grey through window/level
func windowValue(value, window, level float64) uint16 {
	if window <= 0 {
		if value >= level {
			return math.MaxUint16
		}
		return 0
	}
	lower := level - window/2
	t := (value - lower) / window
	return uint16(math.Round(math.Max(0, math.Min(1, t)) * math.MaxUint16))
}

// Scale resizes img to width x height with bilinear filtering
func Scale(img image.Image, width, height int) *image.Gray16 {
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence writes count slices of the plane, stepping along its
// normal one pixel spacing at a time and centred on the plane's origin, as
// <outputDir>/slice_<name>_NNN.jpg
func (v *Viewer) SaveSliceSequence(name string, reslice mat.Matrix, count int, opts SliceOptions, outputDir string) error {
	if count <= 0 {
		return fmt.Errorf("slice count must be positive, got %d", count)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	opts = v.resolve(opts)

	rot := orientation.ResliceRotation(reslice)
	origin := orientation.ResliceOrigin(reslice)
	normal := r3.Vec{X: rot.At(0, 2), Y: rot.At(1, 2), Z: rot.At(2, 2)}

	for i := 0; i < count; i++ {
		offset := (float64(i) - float64(count-1)/2) * opts.PixelSpacing
		m := orientation.CreateResliceMatrix(rot, r3.Add(origin, r3.Scale(offset, normal)))

		img, err := v.ExtractSlice(m, opts)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", name, i))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

func sq(x float64) float64 {
	return x * x
}
