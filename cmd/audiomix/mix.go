package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/audiomix/render"
	"github.com/opd-ai/audiomix/render/dsp"
	"github.com/opd-ai/audiomix/sink"
	"github.com/opd-ai/audiomix/source"
)

var mixOut string

var mixCmd = &cobra.Command{
	Use:   "mix [inputs...]",
	Short: "Mix audio files into one WAV",
	Long: `Mix decodes each input (WAV, MP3 or Ogg Vorbis), renders it through
its own stream and writes the mixed result to the output WAV file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMix,
}

func init() {
	mixCmd.Flags().StringVarP(&mixOut, "out", "o", "mix.wav", "output WAV file")
	rootCmd.AddCommand(mixCmd)
}

func runMix(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	outFormat, err := cfg.outFormat()
	if err != nil {
		return err
	}

	outFile, err := os.Create(mixOut)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer outFile.Close()

	wavSink, err := sink.NewWAV(outFile, outFormat)
	if err != nil {
		return err
	}

	eng, err := render.NewEngine(render.Config{
		MaxStreams: len(args),
		OutFormat:  outFormat,
		PeriodMS:   int(cfg.Engine.PeriodMS),
		Sink:       wavSink,
		Catalog:    dsp.NewCatalog(),
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i, path := range args {
		src, closeSrc, err := openSource(path)
		if err != nil {
			eng.Destroy()
			return err
		}

		stream, err := eng.Stream(i)
		if err != nil {
			closeSrc()
			eng.Destroy()
			return err
		}
		if err := stream.Open(src.Format()); err != nil {
			closeSrc()
			eng.Destroy()
			return fmt.Errorf("open stream for %s: %w", path, err)
		}

		wg.Add(1)
		go func(path string, src source.Source, done func()) {
			defer wg.Done()
			defer done()
			block := src.Format().BytesForDuration(eng.Period())
			if err := source.Pump(stream, src, block); err != nil {
				fail(fmt.Errorf("render %s: %w", path, err))
			}
			if err := stream.Close(); err != nil {
				fail(fmt.Errorf("close stream for %s: %w", path, err))
			}
		}(path, src, closeSrc)
	}

	wg.Wait()
	if err := eng.Destroy(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runMix",
			"error":    err.Error(),
		}).Error("Engine teardown failed")
	}
	if err := wavSink.Close(); err != nil {
		return err
	}
	if firstErr != nil {
		return firstErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "mixed %d inputs into %s\n", len(args), mixOut)
	return nil
}

// openSource picks a decoder by file extension.
func openSource(path string) (source.Source, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	closer := func() { f.Close() }

	var src source.Source
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		src, err = source.NewWAV(f)
	case ".mp3":
		src, err = source.NewMP3(f)
	case ".ogg", ".oga":
		src, err = source.NewVorbis(f)
	default:
		f.Close()
		return nil, nil, fmt.Errorf("unsupported input type: %s", path)
	}
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return src, closer, nil
}
