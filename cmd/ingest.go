package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/maastricht-university/emocorpus/observe"
	"github.com/maastricht-university/emocorpus/orchestrator"
	"github.com/maastricht-university/emocorpus/store"
)

func (a *app) ingestCommand() *cobra.Command {
	var (
		link    bool
		noBar   bool
		summary bool
	)
	c := &cobra.Command{
		Use:   "ingest [input-dir]",
		Short: "Extract landmarks, mel segments and phonemes from every clip",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := a.conf.Paths.Data
			if len(args) == 1 {
				in = args[0]
			}
			clips, err := orchestrator.ListClips(in)
			if err != nil {
				return err
			}

			mp := observe.NewManualProvider()
			defer mp.Shutdown(cmd.Context())
			metrics, err := observe.NewMetrics(mp)
			if err != nil {
				return err
			}

			opts := []orchestrator.Option{
				orchestrator.WithLogger(a.log),
				orchestrator.WithMetrics(metrics),
			}
			var (
				progress *mpb.Progress
				bar      *mpb.Bar
			)
			if !noBar {
				progress, bar = newBar(cmd.ErrOrStderr(), "Ingesting: ", len(clips))
				opts = append(opts, orchestrator.WithProgress(func(orchestrator.ClipResult) { bar.Increment() }))
			}

			rep, runErr := orchestrator.NewPipeline(a.conf, opts...).Run(cmd.Context(), in)
			finishBar(progress, bar)
			if rep != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d succeeded, %d skipped, %d failed, %d frames\n",
					rep.RunID, rep.Succeeded, rep.Skipped, rep.Failed, rep.Frames)
				if rep.Path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", rep.Path)
				}
			}
			if summary {
				if err := printTotals(cmd, mp); err != nil {
					a.log.WithError(err).Warn("collecting metrics")
				}
			}
			if runErr != nil {
				return runErr
			}
			if link {
				n, err := store.LinkCorpus(a.conf.Paths.Outputs, a.conf.Paths.Master, store.WithLogger(a.log))
				if err != nil {
					return err
				}
				a.log.WithFields(logrus.Fields{"master": a.conf.Paths.Master, "clips": n}).Info("master linked")
			}
			return nil
		},
	}
	c.Flags().BoolVar(&link, "link", false, "link clip stores into the master store afterwards")
	c.Flags().BoolVar(&noBar, "no-progress", false, "disable the progress bar")
	c.Flags().BoolVar(&summary, "metrics", false, "print metric totals after the run")
	return c
}

func newBar(w io.Writer, name string, total int) (*mpb.Progress, *mpb.Bar) {
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	return p, bar
}

func finishBar(p *mpb.Progress, bar *mpb.Bar) {
	if p == nil {
		return
	}
	if !bar.Completed() {
		bar.Abort(false)
	}
	p.Wait()
}

func printTotals(cmd *cobra.Command, mp *observe.ManualProvider) error {
	totals, err := mp.Totals(cmd.Context())
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", k, totals[k])
	}
	return nil
}
