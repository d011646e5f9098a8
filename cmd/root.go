// Package cmd is the emocorpus command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/maastricht-university/emocorpus/config"
)

type app struct {
	v    *viper.Viper
	conf *cfg.Root
	log  *logrus.Logger

	configPath string
}

func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: cfg.NewViper(), log: logrus.New()}
	a.log.SetOutput(errOut)
	a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:           "emocorpus",
		Short:         "Build multimodal emotion corpora from video clips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default config/$CONFIG_ENV/config.yaml)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("outputs", "", "outputs directory")
	_ = a.v.BindPFlag("pipeline.log_level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("paths.outputs", pf.Lookup("outputs"))

	root.AddCommand(
		a.ingestCommand(),
		a.linkCommand(),
		a.materializeCommand(),
		a.inspectCommand(),
		a.configCommand(),
	)
	return root
}

func (a *app) load() error {
	conf, err := cfg.LoadViper(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.conf = conf
	if conf.Pipeline.LogLvl != "" {
		lvl, err := logrus.ParseLevel(conf.Pipeline.LogLvl)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		a.log.SetLevel(lvl)
	}
	a.log.WithFields(logrus.Fields{
		"pipeline": conf.Pipeline.Name,
		"version":  conf.Pipeline.Version,
		"config":   a.v.ConfigFileUsed(),
	}).Debug("configuration loaded")
	return nil
}

func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}
