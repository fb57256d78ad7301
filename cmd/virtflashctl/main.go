// Command virtflashctl exercises a virtflash store against a
// file-backed flash image. Subcommands map directly onto the store's
// public operations, which is useful for manual poking at an image
// from a shell.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/anvoe/virtflash/flashdev"
	"github.com/anvoe/virtflash/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "write":
		err = runWrite(args)
	case "read":
		err = runRead(args)
	case "delete":
		err = runDelete(args)
	case "stats":
		err = runStats(args)
	case "clean":
		err = runClean(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "virtflashctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: virtflashctl <write|read|delete|stats|clean> -image PATH [args...]")
}

func commonFlags(fs *flag.FlagSet) (image *string, pages *int, pageSize *int) {
	image = fs.String("image", "", "path to the flash image file")
	pages = fs.Int("pages", 128, "page count of the image (also used when creating a new image)")
	pageSize = fs.Int("pagesize", 2048, "page size in bytes of the image (also used when creating a new image)")
	return
}

func openStore(imagePath string, pages, pageSize int) (*store.Store, *flashdev.DirectFile, error) {
	if imagePath == "" {
		return nil, nil, fmt.Errorf("-image is required")
	}
	geo := store.DefaultGeometry()
	geo.PageCount = pages
	geo.PageSize = pageSize

	dev, err := flashdev.OpenDirectFile(imagePath, geo.PageCount, geo.ChunksPerPage())
	if err != nil {
		return nil, nil, fmt.Errorf("open image: %w", err)
	}
	s, err := store.Open(dev, geo, store.Options{Logger: logrus.NewEntry(logrus.StandardLogger())})
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return s, dev, nil
}

func runWrite(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	image, pages, pageSize := commonFlags(fs)
	id := fs.Uint("id", 0, "record id")
	value := fs.String("value", "", "payload bytes (as a literal string)")
	fs.Parse(args)

	s, dev, err := openStore(*image, *pages, *pageSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := s.Write(uint16(*id), []byte(*value)); err != nil {
		return fmt.Errorf("write id %d: %w", *id, err)
	}
	fmt.Printf("wrote id %d (%d bytes)\n", *id, len(*value))
	return nil
}

func runRead(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	image, pages, pageSize := commonFlags(fs)
	id := fs.Uint("id", 0, "record id")
	fs.Parse(args)

	s, dev, err := openStore(*image, *pages, *pageSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	payload, err := s.Read(uint16(*id))
	if err != nil {
		return fmt.Errorf("read id %d: %w", *id, err)
	}
	fmt.Printf("%s\n", payload)
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	image, pages, pageSize := commonFlags(fs)
	id := fs.Uint("id", 0, "record id")
	fs.Parse(args)

	s, dev, err := openStore(*image, *pages, *pageSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := s.Delete(uint16(*id)); err != nil {
		return fmt.Errorf("delete id %d: %w", *id, err)
	}
	fmt.Printf("deleted id %d\n", *id)
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	image, pages, pageSize := commonFlags(fs)
	fs.Parse(args)

	s, dev, err := openStore(*image, *pages, *pageSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	st := s.Stats()
	fmt.Printf("busy_pages=%d free_pages=%d next_alloc=%d ids=%d\n", st.BusyPages, st.FreePages, st.NextAlloc, len(st.Ids))
	for _, p := range st.Pages {
		fmt.Printf("  virt=%-6d phys=%-6d fragments=%-6d free_space=%-6d live_bytes=%d\n",
			p.VirtNum, p.PhysNum, p.Fragments, p.FreeSpace, p.LiveBytes)
	}
	return nil
}

func runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	image, pages, pageSize := commonFlags(fs)
	fs.Parse(args)

	s, dev, err := openStore(*image, *pages, *pageSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := s.Clean(); err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	fmt.Println("store erased")
	return nil
}
