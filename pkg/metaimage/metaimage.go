// Package metaimage reads and writes 3D scalar images in the ITK MetaImage
// format: a text header (.mhd) describing size, spacing, origin and direction,
// with the voxel data either following the header (.mha) or in a separate raw
// file.
package metaimage

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/internal/models"
)

// ErrUnsupported marks headers this reader understands but cannot load
var ErrUnsupported = errors.New("unsupported metaimage")

// ElementType is a MetaImage voxel type name
type ElementType string

const (
	MetUChar  ElementType = "MET_UCHAR"
	MetChar   ElementType = "MET_CHAR"
	MetShort  ElementType = "MET_SHORT"
	MetUShort ElementType = "MET_USHORT"
	MetInt    ElementType = "MET_INT"
	MetUInt   ElementType = "MET_UINT"
	MetFloat  ElementType = "MET_FLOAT"
	MetDouble ElementType = "MET_DOUBLE"
)

var elementSizes = map[ElementType]int{
	MetUChar:  1,
	MetChar:   1,
	MetShort:  2,
	MetUShort: 2,
	MetInt:    4,
	MetUInt:   4,
	MetFloat:  4,
	MetDouble: 8,
}

// Header holds the fields of a MetaImage header that describe a 3D image
type Header struct {
	DimSize         [3]int
	ElementSpacing  [3]float64
	Offset          [3]float64
	TransformMatrix [9]float64
	ElementType     ElementType
	BigEndian       bool
	Compressed      bool
	ElementDataFile string
}

// key aliases accepted on read
var headerAliases = map[string]string{
	"Origin":              "Offset",
	"Position":            "Offset",
	"Rotation":            "TransformMatrix",
	"Orientation":         "TransformMatrix",
	"ElementByteOrderMSB": "BinaryDataByteOrderMSB",
}

// ReadHeader parses header lines up to and including ElementDataFile, which
// must be the last field. The reader is left positioned at the first byte
// after that line.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{
		ElementSpacing:  [3]float64{1, 1, 1},
		TransformMatrix: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
	seen := map[string]bool{}

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			key, value, ok := strings.Cut(trimmed, "=")
			if !ok {
				return nil, errors.Errorf("malformed header line %q", trimmed)
			}
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if alias, ok := headerAliases[key]; ok {
				key = alias
			}
			seen[key] = true

			if err := h.set(key, value); err != nil {
				return nil, err
			}
			if key == "ElementDataFile" {
				break
			}
		}
		if err == io.EOF {
			return nil, errors.New("header ended before ElementDataFile")
		}
	}

	for _, required := range []string{"DimSize", "ElementType"} {
		if !seen[required] {
			return nil, errors.Errorf("header is missing %s", required)
		}
	}
	return h, nil
}

func (h *Header) set(key, value string) error {
	switch key {
	case "ObjectType":
		if !strings.EqualFold(value, "Image") {
			return errors.Wrapf(ErrUnsupported, "ObjectType %s", value)
		}
	case "NDims":
		if value != "3" {
			return errors.Wrapf(ErrUnsupported, "NDims %s, only 3D images are read", value)
		}
	case "ElementNumberOfChannels":
		if value != "1" {
			return errors.Wrapf(ErrUnsupported, "%s channels, only scalar images are read", value)
		}
	case "DimSize":
		values, err := parseInts(value, 3)
		if err != nil {
			return errors.Wrap(err, "DimSize")
		}
		copy(h.DimSize[:], values)
	case "ElementSpacing", "ElementSize":
		values, err := parseFloats(value, 3)
		if err != nil {
			return errors.Wrap(err, key)
		}
		copy(h.ElementSpacing[:], values)
	case "Offset":
		values, err := parseFloats(value, 3)
		if err != nil {
			return errors.Wrap(err, "Offset")
		}
		copy(h.Offset[:], values)
	case "TransformMatrix":
		values, err := parseFloats(value, 9)
		if err != nil {
			return errors.Wrap(err, "TransformMatrix")
		}
		copy(h.TransformMatrix[:], values)
	case "ElementType":
		t := ElementType(strings.ToUpper(value))
		if _, ok := elementSizes[t]; !ok {
			return errors.Wrapf(ErrUnsupported, "ElementType %s", value)
		}
		h.ElementType = t
	case "BinaryDataByteOrderMSB":
		h.BigEndian = strings.EqualFold(value, "True")
	case "CompressedData":
		h.Compressed = strings.EqualFold(value, "True")
	case "ElementDataFile":
		if strings.EqualFold(value, "LIST") {
			return errors.Wrap(ErrUnsupported, "ElementDataFile LIST")
		}
		h.ElementDataFile = value
	}
	// Anything else (AnatomicalOrientation, CenterOfRotation, ...) is ignored
	return nil
}

// Direction returns the direction matrix. TransformMatrix lists the direction
// of each index axis in turn, so column c is values [3c, 3c+3).
func (h *Header) Direction() [3][3]float64 {
	var d [3][3]float64
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			d[r][c] = h.TransformMatrix[c*3+r]
		}
	}
	return d
}

func (h *Header) byteOrder() binary.ByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Decode reads a complete image. Data that lives in a separate file is opened
// through openData with the name given in the header.
func Decode(r io.Reader, openData func(name string) (io.ReadCloser, error)) (*models.Image, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}

	var data io.Reader = br
	if !strings.EqualFold(h.ElementDataFile, "LOCAL") {
		f, err := openData(h.ElementDataFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open data file %s", h.ElementDataFile)
		}
		defer f.Close()
		data = f
	}
	if h.Compressed {
		zr, err := zlib.NewReader(data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open compressed data")
		}
		defer zr.Close()
		data = zr
	}

	for axis, n := range h.DimSize {
		if n <= 0 {
			return nil, errors.Errorf("DimSize along axis %d must be positive, got %d", axis, n)
		}
	}
	img := models.NewImage(h.DimSize, h.ElementSpacing, h.Offset)
	img.Direction = h.Direction()
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := readVoxels(data, h, img.Voxels); err != nil {
		return nil, err
	}
	return img, nil
}

func readVoxels(r io.Reader, h *Header, out []float64) error {
	n := len(out)
	raw := make([]byte, n*elementSizes[h.ElementType])
	if _, err := io.ReadFull(r, raw); err != nil {
		return errors.Wrapf(err, "expected %d voxels of %s", n, h.ElementType)
	}

	order := h.byteOrder()
	buf := bytes.NewReader(raw)
	read := func(v interface{}) error {
		return binary.Read(buf, order, v)
	}

	switch h.ElementType {
	case MetUChar:
		for i, b := range raw {
			out[i] = float64(b)
		}
	case MetChar:
		for i, b := range raw {
			out[i] = float64(int8(b))
		}
	case MetShort:
		v := make([]int16, n)
		if err := read(v); err != nil {
			return err
		}
		for i := range v {
			out[i] = float64(v[i])
		}
	case MetUShort:
		v := make([]uint16, n)
		if err := read(v); err != nil {
			return err
		}
		for i := range v {
			out[i] = float64(v[i])
		}
	case MetInt:
		v := make([]int32, n)
		if err := read(v); err != nil {
			return err
		}
		for i := range v {
			out[i] = float64(v[i])
		}
	case MetUInt:
		v := make([]uint32, n)
		if err := read(v); err != nil {
			return err
		}
		for i := range v {
			out[i] = float64(v[i])
		}
	case MetFloat:
		v := make([]float32, n)
		if err := read(v); err != nil {
			return err
		}
		for i := range v {
			out[i] = float64(v[i])
		}
	case MetDouble:
		return read(out)
	}
	return nil
}

// Read loads a .mhd or .mha file. Separate data files are resolved relative
// to the header's directory.
func Read(path string) (*models.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(path)
	img, err := Decode(f, func(name string) (io.ReadCloser, error) {
		if filepath.Base(name) != name {
			return nil, errors.Errorf("data file %s must be next to its header", name)
		}
		return os.Open(filepath.Join(dir, name))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return img, nil
}

// Write saves img as path (.mhd) plus a raw data file next to it, storing
// voxels as elementType in little-endian order. Values are rounded and
// saturated for the integer types.
func Write(path string, img *models.Image, elementType ElementType) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if _, ok := elementSizes[elementType]; !ok {
		return errors.Wrapf(ErrUnsupported, "ElementType %s", elementType)
	}

	rawName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".raw"

	var header bytes.Buffer
	fmt.Fprintln(&header, "ObjectType = Image")
	fmt.Fprintln(&header, "NDims = 3")
	fmt.Fprintln(&header, "BinaryData = True")
	fmt.Fprintln(&header, "BinaryDataByteOrderMSB = False")
	fmt.Fprintln(&header, "CompressedData = False")
	fmt.Fprintf(&header, "TransformMatrix = %s\n", joinFloats(transformMatrix(img.Direction)))
	fmt.Fprintf(&header, "Offset = %s\n", joinFloats(img.Origin[:]))
	fmt.Fprintf(&header, "ElementSpacing = %s\n", joinFloats(img.Spacing[:]))
	fmt.Fprintf(&header, "DimSize = %d %d %d\n", img.Size[0], img.Size[1], img.Size[2])
	fmt.Fprintf(&header, "ElementType = %s\n", elementType)
	fmt.Fprintf(&header, "ElementDataFile = %s\n", rawName)

	if err := os.WriteFile(path, header.Bytes(), 0644); err != nil {
		return err
	}

	var data bytes.Buffer
	if err := writeVoxels(&data, elementType, img.Voxels); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(filepath.Dir(path), rawName), data.Bytes(), 0644)
}

func writeVoxels(w io.Writer, t ElementType, voxels []float64) error {
	order := binary.LittleEndian
	switch t {
	case MetUChar:
		v := make([]uint8, len(voxels))
		for i, x := range voxels {
			v[i] = uint8(saturate(x, 0, math.MaxUint8))
		}
		return binary.Write(w, order, v)
	case MetChar:
		v := make([]int8, len(voxels))
		for i, x := range voxels {
			v[i] = int8(saturate(x, math.MinInt8, math.MaxInt8))
		}
		return binary.Write(w, order, v)
	case MetShort:
		v := make([]int16, len(voxels))
		for i, x := range voxels {
			v[i] = int16(saturate(x, math.MinInt16, math.MaxInt16))
		}
		return binary.Write(w, order, v)
	case MetUShort:
		v := make([]uint16, len(voxels))
		for i, x := range voxels {
			v[i] = uint16(saturate(x, 0, math.MaxUint16))
		}
		return binary.Write(w, order, v)
	case MetInt:
		v := make([]int32, len(voxels))
		for i, x := range voxels {
			v[i] = int32(saturate(x, math.MinInt32, math.MaxInt32))
		}
		return binary.Write(w, order, v)
	case MetUInt:
		v := make([]uint32, len(voxels))
		for i, x := range voxels {
			v[i] = uint32(saturate(x, 0, math.MaxUint32))
		}
		return binary.Write(w, order, v)
	case MetFloat:
		v := make([]float32, len(voxels))
		for i, x := range voxels {
			v[i] = float32(x)
		}
		return binary.Write(w, order, v)
	}
	return binary.Write(w, order, voxels)
}

func saturate(x, lo, hi float64) float64 {
	x = math.Round(x)
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func transformMatrix(d [3][3]float64) []float64 {
	out := make([]float64, 0, 9)
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			out = append(out, d[r][c])
		}
	}
	return out
}

func joinFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, errors.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(s string, n int) ([]int, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, errors.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
