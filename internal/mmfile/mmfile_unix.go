//go:build unix

// Package mmfile memory-maps a file read-write so its bytes can be handed
// straight to buftree.New/Load as the tree's backing buffer: mutations the
// tree makes land directly on the mapped pages, and Flush pushes them to
// disk.
package mmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a file whose contents are mapped read-write into the process's
// address space.
type File struct {
	f    *os.File
	data []byte
}

// Open opens path (creating it and growing it to size if it does not exist
// or is smaller) and maps it read-write.
func Open(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		size = info.Size()
	}
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("mmfile: cannot map empty file %s", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, data: data}, nil
}

// Bytes returns the mapped buffer. Writes through this slice are visible to
// the OS page cache immediately and reach disk when Flush or Close runs.
func (m *File) Bytes() []byte {
	return m.data
}

// Flush synchronously writes dirty mapped pages back to the file.
func (m *File) Flush() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close flushes and unmaps the file.
func (m *File) Close() error {
	if m.data == nil {
		return nil
	}
	ferr := unix.Msync(m.data, unix.MS_SYNC)
	uerr := unix.Munmap(m.data)
	m.data = nil
	cerr := m.f.Close()
	if ferr != nil {
		return ferr
	}
	if uerr != nil {
		return uerr
	}
	return cerr
}
