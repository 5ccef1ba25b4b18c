package kernel

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// WriteSTLFile writes m to path, creating parent directories as needed.
// Backends use it to implement Kernel.WriteSTL.
func WriteSTLFile(m *Mesh, path string, binaryFormat bool) error {
	if m == nil {
		return fmt.Errorf("write stl: nil mesh")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write stl: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	w := bufio.NewWriter(f)
	if binaryFormat {
		err = EncodeBinarySTL(w, m)
	} else {
		err = EncodeASCIISTL(w, m)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write stl %s: %w", path, err)
	}
	return nil
}

// EncodeBinarySTL writes m in binary STL format: an 80 byte header, a
// little-endian triangle count, then 50 bytes per triangle.
func EncodeBinarySTL(w io.Writer, m *Mesh) error {
	var header [80]byte
	copy(header[:], "declcad "+m.PartName)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	n := m.TriangleCount()
	if err := binary.Write(w, binary.LittleEndian, uint32(n)); err != nil {
		return err
	}
	var rec [50]byte
	for t := 0; t < n; t++ {
		tri := m.Triangle(t)
		normal := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0])).Normalize()
		put := func(off int, f float64) {
			binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(float32(f)))
		}
		put(0, normal.X)
		put(4, normal.Y)
		put(8, normal.Z)
		for j, v := range tri {
			off := 12 + j*12
			put(off, v.X)
			put(off+4, v.Y)
			put(off+8, v.Z)
		}
		rec[48], rec[49] = 0, 0
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// EncodeASCIISTL writes m in ASCII STL format.
func EncodeASCIISTL(w io.Writer, m *Mesh) error {
	name := strings.ReplaceAll(m.PartName, " ", "_")
	if name == "" {
		name = "declcad"
	}
	if _, err := fmt.Fprintf(w, "solid %s\n", name); err != nil {
		return err
	}
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0])).Normalize()
		fmt.Fprintf(w, "  facet normal %e %e %e\n    outer loop\n", n.X, n.Y, n.Z)
		for _, v := range tri {
			fmt.Fprintf(w, "      vertex %e %e %e\n", v.X, v.Y, v.Z)
		}
		if _, err := fmt.Fprint(w, "    endloop\n  endfacet\n"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "endsolid %s\n", name)
	return err
}
