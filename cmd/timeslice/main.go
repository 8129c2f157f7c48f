package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tinyrange/crtglow/internal/timeslice"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	filename := fs.String("filename", "", "Timeslice file to read")
	sums := fs.Bool("sums", false, "Print per-kind totals instead of every record")
	passes := fs.Bool("passes", false, "Only show GPU pass records")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *filename == "" {
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open timeslice file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	keep := func(flags timeslice.Flags) bool {
		return !*passes || flags&timeslice.FlagPass != 0
	}

	if *sums {
		summary, err := timeslice.Summarize(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read timeslice file: %v\n", err)
			os.Exit(1)
		}
		for _, s := range summary {
			if !keep(s.Flags) {
				continue
			}
			fmt.Printf("% 32s flags=% 14s count=% 8d sum=% 14s max=% 14s avg=% 14s\n",
				s.Name, s.Flags, s.Count, s.Total, s.Max, s.Mean())
		}
		return
	}

	if err := timeslice.ReadAllRecords(f, func(name string, flags timeslice.Flags, d time.Duration) error {
		if keep(flags) {
			fmt.Printf("%s %s %s\n", name, flags, d)
		}
		return nil
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read timeslice file: %v\n", err)
		os.Exit(1)
	}
}
