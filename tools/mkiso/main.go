// Command mkiso packages a kernel image into a bootable ISO9660 image. The
// image carries a GRUB configuration that loads the kernel through the
// multiboot protocol and El Torito entries for the supplied BIOS and EFI GRUB
// boot images.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	diskpkg "github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"
)

// Locations inside the image.
const (
	kernelPath   = "/boot/kernel.bin"
	grubCfgPath  = "/boot/grub/grub.cfg"
	biosBootPath = "/boot/grub/i386-pc/eltorito.img"
	efiBootPath  = "/EFI/BOOT/efiboot.img"
	bootCatalog  = "/boot/boot.cat"
)

const (
	blockSize = 2048

	// imageSlack is added to the file contents to cover the volume
	// descriptors, the path tables and the boot catalog.
	imageSlack = 1 << 20

	menuTitle = "CureOS"
)

type options struct {
	kernel   string
	out      string
	biosBoot string
	efiBoot  string
	cmdLine  string
	volume   string
	sizeMiB  uint
	timeout  uint
}

// isoFile is a file to be placed in the image, either copied from src on
// the host or taken from data.
type isoFile struct {
	dst  string
	src  string
	data []byte
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkiso] error: %s\n", err.Error())
	os.Exit(1)
}

func parseFlags(args []string) (*options, error) {
	var (
		opts options
		fs   = flag.NewFlagSet("mkiso", flag.ContinueOnError)
	)

	fs.StringVar(&opts.kernel, "kernel", "", "kernel ELF image to boot")
	fs.StringVar(&opts.out, "out", "kernel.iso", "path of the ISO image to create (replaced if it exists)")
	fs.StringVar(&opts.biosBoot, "bios-boot", "", "GRUB El Torito image for BIOS boot (grub-mkimage -O i386-pc-eltorito)")
	fs.StringVar(&opts.efiBoot, "efi-boot", "", "FAT image holding the GRUB EFI loader")
	fs.StringVar(&opts.cmdLine, "cmdline", "", "kernel command line")
	fs.StringVar(&opts.volume, "volume", "CUREOS", "volume identifier")
	fs.UintVar(&opts.sizeMiB, "size", 0, "image size in MiB (0 to size the image to fit its contents)")
	fs.UintVar(&opts.timeout, "timeout", 0, "GRUB menu timeout in seconds")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case opts.kernel == "":
		return nil, errors.New("missing -kernel")
	case opts.biosBoot == "" && opts.efiBoot == "":
		return nil, errors.New("at least one of -bios-boot and -efi-boot is required")
	case strings.ContainsAny(opts.cmdLine, "\n\"{}"):
		return nil, errors.New("command line must not contain newlines, quotes or braces")
	}

	return &opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		exit(err)
	}

	if err = build(opts); err != nil {
		exit(err)
	}

	fmt.Printf("[mkiso] wrote %s\n", opts.out)
}

// grubConfig returns a GRUB configuration with a single entry that boots the
// kernel with cmdLine.
func grubConfig(cmdLine string, timeout uint) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "set timeout=%d\nset default=0\n\n", timeout)
	fmt.Fprintf(&sb, "menuentry \"%s\" {\n", menuTitle)
	sb.WriteString("\tmultiboot " + kernelPath)
	if cmdLine != "" {
		sb.WriteString(" " + cmdLine)
	}
	sb.WriteString("\n\tboot\n}\n")

	return sb.String()
}

// imageFiles lists the files placed in the image for opts.
func imageFiles(opts *options) []isoFile {
	files := []isoFile{
		{dst: kernelPath, src: opts.kernel},
		{dst: grubCfgPath, data: []byte(grubConfig(opts.cmdLine, opts.timeout))},
	}

	if opts.biosBoot != "" {
		files = append(files, isoFile{dst: biosBootPath, src: opts.biosBoot})
	}
	if opts.efiBoot != "" {
		files = append(files, isoFile{dst: efiBootPath, src: opts.efiBoot})
	}

	return files
}

// bootEntries returns the El Torito entries for the boot images in opts.
func bootEntries(opts *options) []*iso9660.ElToritoEntry {
	var entries []*iso9660.ElToritoEntry

	if opts.biosBoot != "" {
		entries = append(entries, &iso9660.ElToritoEntry{
			Platform:  iso9660.BIOS,
			Emulation: iso9660.NoEmulation,
			BootFile:  biosBootPath,
			BootTable: true,
			LoadSize:  4,
		})
	}
	if opts.efiBoot != "" {
		entries = append(entries, &iso9660.ElToritoEntry{
			Platform:  iso9660.EFI,
			Emulation: iso9660.NoEmulation,
			BootFile:  efiBootPath,
		})
	}

	return entries
}

func roundUp(v int64) int64 {
	return (v + blockSize - 1) &^ (blockSize - 1)
}

// imageSize returns the size of the image needed to hold files. A non-zero
// sizeMiB is used as is, provided that the files fit.
func imageSize(files []isoFile, sizeMiB uint) (int64, error) {
	need := int64(imageSlack)
	for _, f := range files {
		size := int64(len(f.data))
		if f.src != "" {
			info, err := os.Stat(f.src)
			if err != nil {
				return 0, err
			}
			size = info.Size()
		}
		need += roundUp(size)
	}

	if sizeMiB == 0 {
		return need, nil
	}

	size := int64(sizeMiB) << 20
	if size < need {
		return 0, fmt.Errorf("image contents need %d bytes; -size allows %d", need, size)
	}

	return size, nil
}

func build(opts *options) (err error) {
	files := imageFiles(opts)

	size, err := imageSize(files, opts.sizeMiB)
	if err != nil {
		return err
	}

	if err = os.Remove(opts.out); err != nil && !os.IsNotExist(err) {
		return err
	}

	disk, err := diskfs.Create(opts.out, size, diskfs.Raw, diskfs.SectorSize(blockSize))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeImage(disk.File); err == nil {
			err = cerr
		}
	}()

	fs, err := disk.CreateFilesystem(diskpkg.FilesystemSpec{Partition: 0, FSType: filesystem.TypeISO9660})
	if err != nil {
		return err
	}

	for _, f := range files {
		if err = copyFile(fs, f); err != nil {
			return fmt.Errorf("%s: %w", f.dst, err)
		}
	}

	iso, ok := fs.(*iso9660.FileSystem)
	if !ok {
		return errors.New("created filesystem is not ISO9660")
	}

	return iso.Finalize(iso9660.FinalizeOptions{
		VolumeIdentifier: opts.volume,
		RockRidge:        true,
		ElTorito: &iso9660.ElTorito{
			BootCatalog: bootCatalog,
			Entries:     bootEntries(opts),
		},
	})
}

// closeImage releases the backing file of a created disk image. The
// finalized ISO is only guaranteed to be on disk once this returns nil.
func closeImage(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Close()
}

func copyFile(fs filesystem.FileSystem, f isoFile) error {
	if err := fs.Mkdir(dirName(f.dst)); err != nil {
		return err
	}

	dst, err := fs.OpenFile(f.dst, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return err
	}
	defer dst.Close()

	if f.src == "" {
		_, err = dst.Write(f.data)
		return err
	}

	src, err := os.Open(f.src)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}

// dirName returns the directory part of an absolute image path.
func dirName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return "/"
}
