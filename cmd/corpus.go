package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/maastricht-university/emocorpus/corpus"
	"github.com/maastricht-university/emocorpus/observe"
	"github.com/maastricht-university/emocorpus/store"
)

func (a *app) linkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link [outputs-dir] [master]",
		Short: "Write a master store linking every clip store",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, master := a.conf.Paths.Outputs, a.conf.Paths.Master
			if len(args) > 0 {
				base = args[0]
			}
			if len(args) > 1 {
				master = args[1]
			}
			n, err := store.LinkCorpus(base, master, store.WithLogger(a.log))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked %d clips into %s\n", n, master)
			return nil
		},
	}
}

func (a *app) materializeCommand() *cobra.Command {
	var noBar bool
	c := &cobra.Command{
		Use:   "materialize [master] [corpus]",
		Short: "Copy every linked clip into one self-contained corpus store",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, out := a.conf.Paths.Master, a.conf.Paths.Corpus
			if len(args) > 0 {
				master = args[0]
			}
			if len(args) > 1 {
				out = args[1]
			}
			ctx := cmd.Context()

			mp := observe.NewManualProvider()
			defer mp.Shutdown(ctx)
			metrics, err := observe.NewMetrics(mp)
			if err != nil {
				return err
			}

			var (
				progress *mpb.Progress
				bar      *mpb.Bar
			)
			if !noBar {
				n, err := countClips(master, a.log)
				if err != nil {
					return err
				}
				progress, bar = newBar(cmd.ErrOrStderr(), "Materializing: ", n)
			}
			sum, err := corpus.Materialize(ctx, master, out,
				corpus.WithLogger(a.log),
				corpus.WithProgress(func(clip string, err error) {
					status := "copied"
					if err != nil {
						status = "skipped"
					}
					metrics.RecordMaterialized(ctx, status)
					if bar != nil {
						bar.Increment()
					}
				}))
			finishBar(progress, bar)
			if sum != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "materialized %d clips (%d datasets, %d skipped) into %s\n",
					len(sum.Clips), sum.Datasets, len(sum.Skipped), out)
				for _, s := range sum.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s\n", s.Error())
				}
			}
			return err
		},
	}
	c.Flags().BoolVar(&noBar, "no-progress", false, "disable the progress bar")
	return c
}

func countClips(master string, log logrus.FieldLogger) (int, error) {
	n := 0
	err := store.With(master, store.ReadOnly, func(st *store.Store) error {
		groups, err := st.Groups("")
		if err != nil {
			return err
		}
		links, err := st.Links()
		if err != nil {
			return err
		}
		names := make(map[string]bool, len(groups)+len(links))
		for _, g := range groups {
			names[g] = true
		}
		for _, l := range links {
			names[l.Name] = true
		}
		n = len(names)
		return nil
	}, store.WithLogger(log))
	return n, err
}
