//go:build linux
// +build linux

package kernel

import (
	"fmt"
	"os"
	"unsafe"
)

// EnumerateFileBlocks walks path's extent map and invokes onBlock once
// per block-size-aligned block discovered in an aligned extent. onSize
// is invoked exactly once, before the first onBlock call, with the
// file's total size. It follows the probe-then-fetch FIEMAP pattern:
// a first ioctl with fm_extent_count=0 reports how many extents exist,
// sized allocation, then a second ioctl fills them in.
//
// Irregular files, zero-length files, extents the kernel flags
// FIEMAP_EXTENT_NOT_ALIGNED, and extents whose offsets or length are
// not block-aligned are skipped with a warning rather than aborting
// the whole run.
func EnumerateFileBlocks(path string, blockSize uint64, warn func(string), onSize func(fileSize uint64), onBlock func(info BlockInfo, read ReadFunc)) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return &Error{Op: "lstat", What: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		warn(fmt.Sprintf("%s is not a regular file, skipped", path))
		return nil
	}
	size := uint64(fi.Size())
	if size == 0 {
		warn(fmt.Sprintf("%s is empty, skipped", path))
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return &Error{Op: "open", What: path, Err: err}
	}
	defer f.Close()
	fd := int(f.Fd())

	probeBuf := make([]byte, sizeofFiemapHeader)
	probe := (*fiemapHeader)(unsafe.Pointer(&probeBuf[0]))
	probe.Start = 0
	probe.Length = size
	probe.Flags = fiemapFlagSync
	probe.ExtentCount = 0
	if err := rawIoctl(fd, fsIocFiemap, unsafe.Pointer(&probeBuf[0])); err != nil {
		return &Error{Op: "fiemap probe", What: path, Err: err}
	}
	mapped := probe.MappedExtents

	buf := make([]byte, sizeofFiemapHeader+uint32(sizeofFiemapExtent)*mapped)
	hdr := (*fiemapHeader)(unsafe.Pointer(&buf[0]))
	hdr.Start = 0
	hdr.Length = size
	hdr.Flags = fiemapFlagSync
	hdr.ExtentCount = mapped
	if err := rawIoctl(fd, fsIocFiemap, unsafe.Pointer(&buf[0])); err != nil {
		return &Error{Op: "fiemap fetch", What: path, Err: err}
	}
	hdr = (*fiemapHeader)(unsafe.Pointer(&buf[0]))

	onSize(size)

	readBuf := make([]byte, blockSize)
	for i := uint32(0); i < hdr.MappedExtents; i++ {
		ext := (*fiemapExtent)(unsafe.Pointer(&buf[sizeofFiemapHeader+uint32(sizeofFiemapExtent)*i]))
		if ext.Flags&fiemapExtentNotAligned != 0 {
			warn(fmt.Sprintf("%s has an extent flagged not aligned, extent ignored", path))
			continue
		}
		if ext.Logical%blockSize != 0 || ext.Physical%blockSize != 0 || ext.Length%blockSize != 0 {
			warn(fmt.Sprintf("%s has unaligned extents, extent ignored", path))
			continue
		}
		for off := uint64(0); off < ext.Length; off += blockSize {
			dataSize := blockSize
			if size-(ext.Logical+off) < dataSize {
				dataSize = size - (ext.Logical + off)
			}
			info := BlockInfo{
				PhysicalOffset: ext.Physical + off,
				LogicalOffset:  ext.Logical + off,
				DataSize:       dataSize,
			}
			logical := ext.Logical + off
			onBlock(info, func() ([]byte, bool) {
				if _, err := f.Seek(int64(logical), 0); err != nil {
					warn(fmt.Sprintf("%s seek failed: %v", path, err))
					return nil, false
				}
				n, err := f.Read(readBuf[:dataSize])
				if err != nil || uint64(n) != dataSize {
					warn(fmt.Sprintf("%s read failed: %v", path, err))
					return nil, false
				}
				return readBuf[:dataSize], true
			})
		}
	}
	return nil
}
