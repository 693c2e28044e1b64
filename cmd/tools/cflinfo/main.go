// Command cflinfo prints the shape and sample statistics of .hdr/.cfl pairs.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/cmplx"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: cflinfo <base>...")
		fmt.Fprintln(flag.CommandLine.Output(), "Prints dimensions and sample statistics for each .hdr/.cfl pair.")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	fsys := fsutil.OSFileSystem{}
	for _, base := range flag.Args() {
		if err := describe(fsys, base); err != nil {
			log.Fatalf("%s: %v", base, err)
		}
	}
}

func describe(fsys fsutil.FileSystem, base string) error {
	v, err := cfl.ReadVolume(fsys, base)
	if err != nil {
		return err
	}

	mags := make([]float64, len(v.Data))
	for i, c := range v.Data {
		mags[i] = cmplx.Abs(complex128(c))
	}

	fmt.Printf("%s:\n", base)
	fmt.Printf("  dims:     %v\n", cfl.SqueezeTrailing(v.Dims))
	fmt.Printf("  elements: %d (%d bytes)\n", len(v.Data), len(v.Data)*8)
	if len(mags) > 0 {
		fmt.Printf("  |x|:      min %.6g  max %.6g  mean %.6g\n",
			floats.Min(mags), floats.Max(mags), stat.Mean(mags, nil))
	}
	return nil
}
