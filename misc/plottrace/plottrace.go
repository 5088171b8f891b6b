// plottrace plots parameter traces from the tab-separated p sink of a
// sampler run.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	pFile := flag.String("p", "p", "parameter log file")
	column := flag.String("column", "posterior", "column to plot")
	out := flag.String("o", "trace.png", "output image")
	flag.Parse()

	f, err := os.Open(*pFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "empty parameter log")
		os.Exit(1)
	}
	header := strings.Split(scanner.Text(), "\t")
	col := -1
	for i, name := range header {
		if name == *column {
			col = i
		}
	}
	if col < 0 {
		fmt.Fprintf(os.Stderr, "no column %q in %v\n", *column, header)
		os.Exit(1)
	}

	var pts plotter.XYs
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= col {
			continue
		}
		iter, err1 := strconv.ParseFloat(fields[0], 64)
		v, err2 := strconv.ParseFloat(fields[col], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		pts = append(pts, plotter.XY{X: iter, Y: v})
	}

	p := plot.New()
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = *column

	if err := plotutil.AddLinePoints(p, *column, pts); err != nil {
		panic(err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
