package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/openbci.go/pkg/bci/env"
	"github.com/robotalks/openbci.go/pkg/bci/sink"
	"github.com/robotalks/openbci.go/pkg/bci/wire"
	fx "github.com/robotalks/openbci.go/pkg/framework"
)

var (
	outFile     string
	fromRecords bool
)

func init() {
	env.SetupFlags()
	flag.StringVar(&outFile, "o", outFile, "Write encoded records to a file instead of printing.")
	flag.BoolVar(&fromRecords, "records", fromRecords, "Input is a record file instead of a raw capture.")
}

// decode decodes a raw capture. A stall only logs as there is no board to
// restart.
func decode(ctx context.Context, conf *env.Config, in io.Reader, h wire.SampleHandler) (wire.Stats, error) {
	d, err := conf.NewDecoder(bufio.NewReader(in))
	if err != nil {
		return wire.Stats{}, err
	}
	d.StallHandler = wire.HandleStallFunc(func(ctx context.Context, e *wire.StallError) error {
		glog.Warningf("%v, continue searching", e)
		return nil
	})
	err = d.Run(ctx, h)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return d.Stats(), err
}

// replay reads a record file.
func replay(ctx context.Context, in io.Reader, h wire.SampleHandler) (int, error) {
	r := &sink.RecordReader{R: bufio.NewReader(in)}
	for count := 0; ; count++ {
		s, _, err := r.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		if err = h.HandleSample(ctx, s); err != nil {
			return count, err
		}
	}
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] FILE\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	conf := env.MustLoad()
	in, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalln(err)
	}
	defer in.Close()

	var h wire.SampleHandler = &sink.Printer{W: os.Stdout}
	if outFile != "" {
		out, err := os.Create(outFile)
		if err != nil {
			log.Fatalln(err)
		}
		defer out.Close()
		w := bufio.NewWriter(out)
		defer w.Flush()
		h = sink.NewRecordWriter(w)
	}

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedFunc("decode", func(ctx context.Context) error {
		if fromRecords {
			count, err := replay(ctx, in, h)
			log.Printf("samples=%d", count)
			return err
		}
		stats, err := decode(ctx, conf, in, h)
		log.Printf("samples=%d framing_errors=%d skipped=%d stalls=%d gaps=%d",
			stats.Samples, stats.FramingErrors, stats.SkippedBytes, stats.Stalls, stats.SequenceGaps)
		return err
	}))
	if err = runner.Wait(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
