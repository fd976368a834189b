// Command idxranges shows which byte ranges the pipeline would request for
// an HRRR file. It reads an index from a local file, an explicit URL, or the
// archive location of a cycle.
//
// Usage:
//
//	go run ./cmd/idxranges -init 2026021312 -product wrfsfc -fh 1
//	go run ./cmd/idxranges -url https://.../hrrr.t12z.wrfprsf01.grib2.idx -patterns "RH:850 mb,TMP:850 mb"
//	go run ./cmd/idxranges -file testdata/hrrr.t12z.wrfsfcf01.grib2.idx
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/adapter/objectstore"
	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/idx"
	"github.com/couchcryptid/hrrr-tile-service/internal/pipeline"
	"github.com/dustin/go-humanize"
)

func main() {
	var (
		file     = flag.String("file", "", "local .idx file")
		url      = flag.String("url", "", "index URL")
		base     = flag.String("base", "https://noaa-hrrr-bdp-pds.s3.amazonaws.com", "archive base URL")
		initStr  = flag.String("init", "", "cycle init time as YYYYMMDDHH (UTC)")
		product  = flag.String("product", string(domain.ProductSurface), "wrfsfc or wrfprs")
		fh       = flag.Int("fh", 1, "forecast hour")
		patterns = flag.String("patterns", "", "comma-separated variable:level patterns (default: the pipeline's)")
		levels   = flag.String("levels", "1000,925,850,700,500,400,300,250,200", "pressure levels used for default wrfprs patterns")
		timeout  = flag.Duration("timeout", 30*time.Second, "HTTP timeout")
	)
	flag.Parse()

	pats := splitList(*patterns)
	if len(pats) == 0 {
		pats = defaultPatterns(domain.Product(*product), *levels)
	}

	if *file != "" {
		if err := fromFile(*file, pats); err != nil {
			fatal(err)
		}
		return
	}

	target := *url
	if target == "" {
		if *initStr == "" {
			fatal(fmt.Errorf("one of -file, -url or -init is required"))
		}
		initTime, err := time.Parse("2006010215", *initStr)
		if err != nil {
			fatal(fmt.Errorf("parse -init: %w", err))
		}
		target = domain.Archive{BaseURL: strings.TrimRight(*base, "/")}.IndexURL(initTime, domain.Product(*product), *fh)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := objectstore.NewClient(*timeout, 100<<20, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ranges, err := client.IndexRanges(ctx, target, pats)
	if err != nil {
		fatal(err)
	}
	fmt.Println(target)
	printRanges("merged", ranges)
}

func fromFile(path string, patterns []string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := idx.Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	selected := idx.Select(entries, patterns)
	fmt.Printf("%s: %d messages, %d selected\n", path, len(entries), len(selected))
	printRanges("selected", selected)
	printRanges("merged", idx.Merge(selected))
	return nil
}

func printRanges(label string, ranges []idx.ByteRange) {
	var total int64
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s (%d)\n", label, len(ranges))
	for _, r := range ranges {
		fmt.Fprintf(w, "  %s\t%s\n", r.Header(), humanize.Bytes(uint64(r.Len())))
		total += r.Len()
	}
	fmt.Fprintf(w, "  total\t%s\n", humanize.Bytes(uint64(total)))
	w.Flush()
}

func defaultPatterns(product domain.Product, levels string) []string {
	if product == domain.ProductSurface {
		return pipeline.DefaultSurfaceVars
	}
	var out []string
	for _, v := range pipeline.DefaultPressureVars {
		for _, l := range splitList(levels) {
			out = append(out, fmt.Sprintf("%s:%s mb", v, l))
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "idxranges:", err)
	os.Exit(1)
}
