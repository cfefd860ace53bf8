package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/audiomix/render"
	"github.com/opd-ai/audiomix/render/dsp"
	"github.com/opd-ai/audiomix/sink"
	"github.com/opd-ai/audiomix/source"
)

var (
	toneOut      string
	toneFreq     int
	toneDuration time.Duration
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Render a sine test tone to a WAV file",
	RunE:  runTone,
}

func init() {
	toneCmd.Flags().StringVarP(&toneOut, "out", "o", "tone.wav", "output WAV file")
	toneCmd.Flags().IntVarP(&toneFreq, "freq", "f", 440, "tone frequency in Hz")
	toneCmd.Flags().DurationVarP(&toneDuration, "duration", "d", 2*time.Second, "tone duration")
	rootCmd.AddCommand(toneCmd)
}

func runTone(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	outFormat, err := cfg.outFormat()
	if err != nil {
		return err
	}

	src, err := source.NewSineTone(outFormat.SampleRate, toneFreq)
	if err != nil {
		return err
	}

	outFile, err := os.Create(toneOut)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer outFile.Close()

	wavSink, err := sink.NewWAV(outFile, outFormat)
	if err != nil {
		return err
	}

	eng, err := render.NewEngine(render.Config{
		MaxStreams: 1,
		OutFormat:  outFormat,
		PeriodMS:   int(cfg.Engine.PeriodMS),
		Sink:       wavSink,
		Catalog:    dsp.NewCatalog(),
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Destroy()

	stream, err := eng.Stream(0)
	if err != nil {
		return err
	}
	if err := stream.Open(src.Format()); err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	block := src.Format().BytesForDuration(eng.Period())
	total := src.Format().BytesForDuration(toneDuration)
	buf := make([]byte, block)
	for written := 0; written < total; written += block {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := stream.Write(buf[:n]); err != nil {
				return fmt.Errorf("render tone: %w", err)
			}
		}
		if rerr != nil {
			break
		}
	}

	if err := stream.Close(); err != nil {
		return err
	}
	if err := wavSink.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s tone at %d Hz to %s\n", toneDuration, toneFreq, toneOut)
	return nil
}
