// Package matfile implements a reader for MATLAB Level 5 MAT-files, scoped
// to the subset the analysis pipeline exports: numeric arrays, cell arrays
// of numeric arrays, struct arrays, and zlib-compressed elements. Data is
// converted from MATLAB's column-major layout to row-major on load.
package matfile

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// MAT-file data element types (miXXX constants from the Level 5 format).
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
	miUTF8       = 16
	miUTF16      = 17
)

// Class identifies the MATLAB array class of a decoded array.
type Class int

// MATLAB array classes (mxXXX_CLASS constants).
const (
	ClassCell   Class = 1
	ClassStruct Class = 2
	ClassObject Class = 3
	ClassChar   Class = 4
	ClassSparse Class = 5
	ClassDouble Class = 6
	ClassSingle Class = 7
	ClassInt8   Class = 8
	ClassUint8  Class = 9
	ClassInt16  Class = 10
	ClassUint16 Class = 11
	ClassInt32  Class = 12
	ClassUint32 Class = 13
)

// IsNumeric reports whether the class holds plain numeric data.
func (c Class) IsNumeric() bool {
	return c == ClassDouble || c == ClassSingle ||
		(c >= ClassInt8 && c <= ClassUint32)
}

// Array is a decoded MATLAB array. Numeric data is stored as float64 in
// row-major order regardless of the on-disk element type.
type Array struct {
	// Name is the variable or field name the array was stored under
	Name string

	// Class is the MATLAB array class
	Class Class

	// Dims holds the array dimensions in MATLAB order
	Dims []int

	values     []float64
	cells      []*Array
	fields     map[string]*Array
	fieldOrder []string
}

// NumElements returns the total element count implied by Dims.
func (a *Array) NumElements() int {
	n := 1
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// Float64s returns the numeric data in row-major order.
// It returns an error for non-numeric arrays.
func (a *Array) Float64s() ([]float64, error) {
	if !a.Class.IsNumeric() && a.Class != ClassChar {
		return nil, fmt.Errorf("array %q is not numeric (class %d)", a.Name, a.Class)
	}
	return a.values, nil
}

// Vector returns the numeric data of an array with at most one
// non-singleton dimension.
func (a *Array) Vector() ([]float64, error) {
	nonSingleton := 0
	for _, d := range a.Dims {
		if d > 1 {
			nonSingleton++
		}
	}
	if nonSingleton > 1 {
		return nil, fmt.Errorf("array %q has shape %v, expected a vector", a.Name, a.Dims)
	}
	return a.Float64s()
}

// Matrix returns a 2D numeric array as a gonum dense matrix.
func (a *Array) Matrix() (*mat.Dense, error) {
	if len(a.Dims) != 2 {
		return nil, fmt.Errorf("array %q has %d dimensions, expected 2", a.Name, len(a.Dims))
	}
	if a.Dims[0] == 0 || a.Dims[1] == 0 {
		return nil, fmt.Errorf("array %q is empty (%dx%d)", a.Name, a.Dims[0], a.Dims[1])
	}
	values, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	return mat.NewDense(a.Dims[0], a.Dims[1], values), nil
}

// Cells returns the contents of a cell array in row-major order.
func (a *Array) Cells() ([]*Array, error) {
	if a.Class != ClassCell {
		return nil, fmt.Errorf("array %q is not a cell array (class %d)", a.Name, a.Class)
	}
	return a.cells, nil
}

// Field returns the named field of a 1x1 struct array.
func (a *Array) Field(name string) (*Array, error) {
	if a.Class != ClassStruct {
		return nil, fmt.Errorf("array %q is not a struct array (class %d)", a.Name, a.Class)
	}
	f, ok := a.fields[name]
	if !ok {
		return nil, fmt.Errorf("struct %q has no field %q", a.Name, name)
	}
	return f, nil
}

// FieldNames returns the struct field names in storage order.
func (a *Array) FieldNames() []string {
	return a.fieldOrder
}

// String interprets a char array as a string.
func (a *Array) String() string {
	if a.Class != ClassChar {
		return fmt.Sprintf("<%s: class %d %v>", a.Name, a.Class, a.Dims)
	}
	runes := make([]rune, len(a.values))
	for i, v := range a.values {
		runes[i] = rune(int32(v))
	}
	return string(runes)
}

// File is a decoded MAT-file: a set of named top-level arrays.
type File struct {
	vars  map[string]*Array
	order []string
}

// Var returns the named top-level variable.
// A missing variable is an error naming the variable.
func (f *File) Var(name string) (*Array, error) {
	a, ok := f.vars[name]
	if !ok {
		return nil, fmt.Errorf("MAT-file has no variable %q", name)
	}
	return a, nil
}

// Names returns the top-level variable names in file order.
func (f *File) Names() []string {
	return f.order
}

// Open reads and decodes a MAT-file from disk.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MAT-file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a MAT-file from a byte slice.
func Parse(data []byte) (*File, error) {
	if len(data) < 128 {
		return nil, fmt.Errorf("file too short for MAT header (%d bytes)", len(data))
	}

	// The endian indicator is the two chars at offset 126: "IM" means the
	// file was written little-endian. Only little-endian files are
	// produced by the acquisition machines, so that is all we accept.
	if data[126] != 'I' || data[127] != 'M' {
		return nil, fmt.Errorf("unsupported byte order indicator %q", string(data[126:128]))
	}
	version := uint16(data[124]) | uint16(data[125])<<8
	if version != 0x0100 {
		return nil, fmt.Errorf("unsupported MAT-file version 0x%04x", version)
	}

	f := &File{vars: make(map[string]*Array)}
	cur := &cursor{buf: data, pos: 128}
	for !cur.done() {
		typ, payload, err := cur.element()
		if err != nil {
			return nil, err
		}
		arrays, err := decodeTopLevel(typ, payload)
		if err != nil {
			return nil, err
		}
		for _, a := range arrays {
			f.vars[a.Name] = a
			f.order = append(f.order, a.Name)
		}
	}
	return f, nil
}

// decodeTopLevel handles one top-level element, transparently inflating
// compressed elements.
func decodeTopLevel(typ int, payload []byte) ([]*Array, error) {
	switch typ {
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("bad compressed element: %w", err)
		}
		defer zr.Close()
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to inflate element: %w", err)
		}
		cur := &cursor{buf: inflated}
		var arrays []*Array
		for !cur.done() {
			innerTyp, innerPayload, err := cur.element()
			if err != nil {
				return nil, err
			}
			inner, err := decodeTopLevel(innerTyp, innerPayload)
			if err != nil {
				return nil, err
			}
			arrays = append(arrays, inner...)
		}
		return arrays, nil

	case miMATRIX:
		a, err := decodeMatrix(payload)
		if err != nil {
			return nil, err
		}
		return []*Array{a}, nil

	default:
		// Skip unknown top-level elements (e.g. subsystem data).
		return nil, nil
	}
}

// cursor walks a sequence of 8-byte-aligned data elements.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) done() bool {
	return c.pos+8 > len(c.buf)
}

func u32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// element reads the next data element, handling both the regular and the
// small (packed) tag format, and leaves the cursor 8-byte aligned.
func (c *cursor) element() (typ int, payload []byte, err error) {
	if c.pos+8 > len(c.buf) {
		return 0, nil, fmt.Errorf("truncated element tag at offset %d", c.pos)
	}
	tag := u32(c.buf[c.pos:])
	if tag>>16 != 0 {
		// Small data element: size and type share the first word and
		// the payload lives in the second.
		size := int(tag >> 16)
		typ = int(tag & 0xFFFF)
		if size > 4 {
			return 0, nil, fmt.Errorf("small element at offset %d claims %d bytes", c.pos, size)
		}
		payload = c.buf[c.pos+4 : c.pos+4+size]
		c.pos += 8
		return typ, payload, nil
	}

	typ = int(tag)
	size := int(u32(c.buf[c.pos+4:]))
	start := c.pos + 8
	if start+size > len(c.buf) {
		return 0, nil, fmt.Errorf("element at offset %d overruns buffer (%d bytes)", c.pos, size)
	}
	payload = c.buf[start : start+size]

	// Advance past the payload and its padding to the next 8-byte
	// boundary. Compressed elements are not padded at end of file.
	c.pos = start + size
	if rem := c.pos % 8; rem != 0 {
		c.pos += 8 - rem
		if c.pos > len(c.buf) {
			c.pos = len(c.buf)
		}
	}
	return typ, payload, nil
}

// decodeMatrix decodes a miMATRIX payload into an Array.
func decodeMatrix(payload []byte) (*Array, error) {
	cur := &cursor{buf: payload}

	// Array flags subelement: class in the low byte, flags above it.
	typ, flagsData, err := cur.element()
	if err != nil {
		return nil, err
	}
	if typ != miUINT32 || len(flagsData) < 8 {
		return nil, fmt.Errorf("malformed array flags subelement (type %d)", typ)
	}
	flags := u32(flagsData)
	class := Class(flags & 0xFF)
	if flags&0x0800 != 0 {
		return nil, fmt.Errorf("complex arrays are not supported")
	}
	if class == ClassSparse {
		return nil, fmt.Errorf("sparse arrays are not supported")
	}

	// Dimensions subelement.
	typ, dimData, err := cur.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT32 {
		return nil, fmt.Errorf("malformed dimensions subelement (type %d)", typ)
	}
	dims := make([]int, len(dimData)/4)
	for i := range dims {
		dims[i] = int(int32(u32(dimData[i*4:])))
	}

	// Array name subelement.
	_, nameData, err := cur.element()
	if err != nil {
		return nil, err
	}
	a := &Array{Name: string(nameData), Class: class, Dims: dims}

	switch {
	case class == ClassCell:
		return decodeCell(cur, a)
	case class == ClassStruct:
		return decodeStruct(cur, a)
	case class.IsNumeric() || class == ClassChar:
		return decodeNumeric(cur, a)
	default:
		return nil, fmt.Errorf("array %q has unsupported class %d", a.Name, class)
	}
}

func decodeCell(cur *cursor, a *Array) (*Array, error) {
	n := a.NumElements()
	cells := make([]*Array, 0, n)
	for i := 0; i < n; i++ {
		typ, payload, err := cur.element()
		if err != nil {
			return nil, fmt.Errorf("cell array %q, element %d: %w", a.Name, i, err)
		}
		if typ != miMATRIX {
			return nil, fmt.Errorf("cell array %q, element %d: unexpected type %d", a.Name, i, typ)
		}
		cell, err := decodeMatrix(payload)
		if err != nil {
			return nil, fmt.Errorf("cell array %q, element %d: %w", a.Name, i, err)
		}
		cells = append(cells, cell)
	}
	// MATLAB stores cells column-major like numeric data; reorder so
	// Cells() walks rows first.
	a.cells = reorderCells(cells, a.Dims)
	return a, nil
}

func decodeStruct(cur *cursor, a *Array) (*Array, error) {
	if a.NumElements() != 1 {
		return nil, fmt.Errorf("struct array %q has %d elements, only scalar structs are supported",
			a.Name, a.NumElements())
	}

	// Field name length subelement, then the packed field names.
	typ, lenData, err := cur.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT32 || len(lenData) < 4 {
		return nil, fmt.Errorf("struct %q: malformed field name length", a.Name)
	}
	nameLen := int(int32(u32(lenData)))
	if nameLen <= 0 {
		return nil, fmt.Errorf("struct %q: invalid field name length %d", a.Name, nameLen)
	}

	typ, namesData, err := cur.element()
	if err != nil {
		return nil, err
	}
	if typ != miINT8 {
		return nil, fmt.Errorf("struct %q: malformed field names (type %d)", a.Name, typ)
	}
	nFields := len(namesData) / nameLen
	names := make([]string, nFields)
	for i := 0; i < nFields; i++ {
		raw := namesData[i*nameLen : (i+1)*nameLen]
		names[i] = string(bytes.TrimRight(raw, "\x00"))
	}

	a.fields = make(map[string]*Array, nFields)
	a.fieldOrder = names
	for _, name := range names {
		typ, payload, err := cur.element()
		if err != nil {
			return nil, fmt.Errorf("struct %q, field %q: %w", a.Name, name, err)
		}
		if typ != miMATRIX {
			return nil, fmt.Errorf("struct %q, field %q: unexpected type %d", a.Name, name, typ)
		}
		field, err := decodeMatrix(payload)
		if err != nil {
			return nil, fmt.Errorf("struct %q, field %q: %w", a.Name, name, err)
		}
		field.Name = name
		a.fields[name] = field
	}
	return a, nil
}

func decodeNumeric(cur *cursor, a *Array) (*Array, error) {
	typ, payload, err := cur.element()
	if err != nil {
		return nil, fmt.Errorf("array %q: %w", a.Name, err)
	}
	colMajor, err := convertNumeric(typ, payload)
	if err != nil {
		return nil, fmt.Errorf("array %q: %w", a.Name, err)
	}
	if want := a.NumElements(); len(colMajor) != want {
		return nil, fmt.Errorf("array %q: %d values for shape %v", a.Name, len(colMajor), a.Dims)
	}
	a.values = columnToRowMajor(colMajor, a.Dims)
	return a, nil
}

// convertNumeric widens on-disk numeric data to float64. MATLAB routinely
// stores double arrays with a narrower element type when the values fit.
func convertNumeric(typ int, payload []byte) ([]float64, error) {
	switch typ {
	case miDOUBLE:
		out := make([]float64, len(payload)/8)
		for i := range out {
			bits := uint64(u32(payload[i*8:])) | uint64(u32(payload[i*8+4:]))<<32
			out[i] = math.Float64frombits(bits)
		}
		return out, nil
	case miSINGLE:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(u32(payload[i*4:])))
		}
		return out, nil
	case miINT8:
		out := make([]float64, len(payload))
		for i, b := range payload {
			out[i] = float64(int8(b))
		}
		return out, nil
	case miUINT8, miUTF8:
		out := make([]float64, len(payload))
		for i, b := range payload {
			out[i] = float64(b)
		}
		return out, nil
	case miINT16:
		out := make([]float64, len(payload)/2)
		for i := range out {
			out[i] = float64(int16(uint16(payload[i*2]) | uint16(payload[i*2+1])<<8))
		}
		return out, nil
	case miUINT16, miUTF16:
		out := make([]float64, len(payload)/2)
		for i := range out {
			out[i] = float64(uint16(payload[i*2]) | uint16(payload[i*2+1])<<8)
		}
		return out, nil
	case miINT32:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(int32(u32(payload[i*4:])))
		}
		return out, nil
	case miUINT32:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(u32(payload[i*4:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported numeric element type %d", typ)
	}
}

// columnToRowMajor reorders MATLAB column-major values into row-major
// order for arbitrary dimensionality.
func columnToRowMajor(values []float64, dims []int) []float64 {
	if len(dims) <= 1 || isVector(dims) {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	out := make([]float64, len(values))
	idx := make([]int, len(dims))
	for src := 0; src < len(values); src++ {
		// idx currently holds the column-major multi-index of src.
		dst := 0
		stride := 1
		for d := len(dims) - 1; d >= 0; d-- {
			dst += idx[d] * stride
			stride *= dims[d]
		}
		out[dst] = values[src]

		// Increment the multi-index with the first dimension fastest.
		for d := 0; d < len(dims); d++ {
			idx[d]++
			if idx[d] < dims[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// reorderCells converts column-major cell ordering to row-major.
func reorderCells(cells []*Array, dims []int) []*Array {
	if len(dims) != 2 || isVector(dims) {
		return cells
	}
	rows, cols := dims[0], dims[1]
	out := make([]*Array, len(cells))
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out[r*cols+c] = cells[c*rows+r]
		}
	}
	return out
}

func isVector(dims []int) bool {
	nonSingleton := 0
	for _, d := range dims {
		if d > 1 {
			nonSingleton++
		}
	}
	return nonSingleton <= 1
}
