package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/emocorpus/dataset"
)

func (a *app) inspectCommand() *cobra.Command {
	var batches int
	c := &cobra.Command{
		Use:   "inspect [corpus]",
		Short: "Load a materialized corpus and print its split and batch shapes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.conf.Paths.Corpus
			if len(args) == 1 {
				path = args[0]
			}
			dc := a.conf.DatasetConfig()
			asm, err := dataset.Open(path, dc, dataset.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer asm.Close()

			meta, err := asm.Load()
			if err != nil {
				return err
			}
			train, test, err := dataset.Split(meta, a.conf.Dataset.TestFraction, dataset.NewRand(dc.Seed))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d examples, %d train, %d test\n", path, len(meta), len(train), len(test))

			it := asm.Batches(train, a.conf.Dataset.BatchSize)
			for i := 0; i < batches && it.Next(cmd.Context()); i++ {
				b := it.Batch()
				fmt.Fprintf(out, "batch %d: size=%d landmarks=%v mel=%v phonemes=%v labels=%v\n",
					i, b.Size(), b.Landmarks.Shape, b.Mel.Shape, b.Phonemes.Shape, b.Labels.Shape)
			}
			if err := it.Err(); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"corpus": path, "examples": len(meta)}).Debug("corpus inspected")
			return nil
		},
	}
	c.Flags().IntVar(&batches, "batches", 1, "number of training batches to assemble")
	return c
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.conf.Dump(cmd.OutOrStdout())
		},
	}
}
