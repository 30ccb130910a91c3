// Command mpeg4mudex removes metadata ("meta") boxes from an MP4/M4A
// file and writes the result, with corrected chunk offsets, to a new
// file.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	gomp4 "github.com/abema/go-mp4"
	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/sunfish-shogi/bufseekio"

	"github.com/jblebrun/mpeg4mudex/config"
	"github.com/jblebrun/mpeg4mudex/format/mp4"
	"github.com/jblebrun/mpeg4mudex/format/mp4/mp4io"
	"github.com/jblebrun/mpeg4mudex/utils/bits/pio"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("mpeg4mudex", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	stripTags := flags.StringSlice("strip", nil, "box tags to remove (default meta)")
	dump := flags.Bool("dump", false, "print the box tree after stripping")
	verify := flags.Bool("verify", true, "re-parse the output and check for surviving boxes")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mpeg4mudex [flags] <infile> <outfile>\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if flags.NArg() != 2 {
		flags.Usage()
		return 2
	}
	inPath, outPath := flags.Arg(0), flags.Arg(1)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if flags.Changed("strip") {
		cfg.Strip = *stripTags
	}
	if flags.Changed("verify") {
		cfg.Verify = verify
	}
	if *verbose {
		cfg.Verbose = true
	}
	var tags []mp4io.Tag
	for _, tag := range cfg.Strip {
		if len(tag) != 4 {
			fmt.Fprintf(os.Stderr, "error: strip tag %q is not four bytes\n", tag)
			return 2
		}
		tags = append(tags, mp4io.StringToTag(tag))
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := process(inPath, outPath, tags, *dump); err != nil {
		slog.Error("stripping failed", "input", inPath, "error", err)
		return 1
	}

	if *cfg.Verify {
		if err := verifyOutput(outPath, cfg.Strip); err != nil {
			fmt.Println(color.RedString("verification failed: %v", err))
			return 1
		}
		fmt.Println(color.GreenString("verified: output parses cleanly with no stripped boxes"))
	}
	return 0
}

func process(inPath, outPath string, tags []mp4io.Tag, dump bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	reportRawScan("input", in)
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return err
	}

	stripper := mp4.NewStripper()
	stripper.StripTags = tags
	if err := stripper.ReadFrom(bufseekio.NewReadSeeker(in, 128*1024, 4)); err != nil {
		return err
	}
	deficit, err := stripper.Strip()
	if err != nil {
		return err
	}
	slog.Debug("stripped box tree", "deficit", deficit)
	if dump {
		mp4io.FprintTree(os.Stdout, stripper.Tree())
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	bufw := bufio.NewWriterSize(out, pio.RecommendBufioSize)
	if err := stripper.WriteTo(bufw); err == nil {
		err = bufw.Flush()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// A partial output file is never valid.
		os.Remove(outPath)
		return err
	}

	if f, err := os.Open(outPath); err == nil {
		reportRawScan("output", f)
		f.Close()
	}
	return nil
}

// reportRawScan runs the heuristic byte search for "meta" and reports
// the result. Diagnostic only: payload bytes can false-positive.
func reportRawScan(name string, r io.Reader) {
	pos, found, err := mp4.ScanForTag(r, mp4io.META)
	switch {
	case err != nil:
		slog.Warn("raw scan failed", "file", name, "error", err)
	case found:
		fmt.Printf("%s: %s\n", name, color.YellowString("'meta' bytes at offset %d", pos))
	default:
		fmt.Printf("%s: %s\n", name, color.GreenString("no 'meta' bytes found"))
	}
}

// verifyOutput re-parses the written file with an independent reader
// and fails if any stripped box type survived.
func verifyOutput(path string, stripped []string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	banned := make(map[gomp4.BoxType]bool, len(stripped))
	for _, tag := range stripped {
		banned[gomp4.StrToBoxType(tag)] = true
	}

	r := bufseekio.NewReadSeeker(f, 128*1024, 4)
	_, err = gomp4.ReadBoxStructure(r, func(h *gomp4.ReadHandle) (interface{}, error) {
		if banned[h.BoxInfo.Type] {
			return nil, fmt.Errorf("box %s survived at offset %d", h.BoxInfo.Type, h.BoxInfo.Offset)
		}
		if h.BoxInfo.IsSupportedType() {
			return h.Expand()
		}
		return nil, nil
	})
	return err
}
