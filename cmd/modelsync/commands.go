package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/modelsync/modelsync"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/logger"
	"github.com/modelsync/modelsync/pkg/models"
	"github.com/modelsync/modelsync/pkg/schemafile"
	"github.com/modelsync/modelsync/pkg/sources"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errNoColorMode = errors.New("--color must be auto, always or never")

func errUnknownFormat(name string) error {
	return fmt.Errorf("unknown format %q, want json or cbor", name)
}

// app holds the flags and state shared by every subcommand.
type app struct {
	typeFiles []string
	verbose   bool
	logFile   string
	colorMode string
	format    string

	out      io.Writer
	log      *logger.LogData
	registry *models.Registry
	palette  palette
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "modelsync",
		Short:         "Inspect, patch and diff model document snapshots",
		Version:       constants.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.log == nil {
				return nil
			}
			return a.log.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVarP(&a.typeFiles, "types", "t", nil, "YAML schema files declaring extra model types")
	flags.BoolVar(&a.verbose, "verbose", false, "log debug output")
	flags.StringVar(&a.logFile, "log-file", "", "append logs to this file instead of stderr")
	flags.StringVar(&a.colorMode, "color", "auto", "colorize listings: auto, always or never")
	flags.StringVarP(&a.format, "format", "f", "json", "output encoding: json or cbor")

	root.AddCommand(
		newInspectCmd(a),
		newApplyCmd(a),
		newDiffCmd(a),
		newTypesCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	level := zerolog.WarnLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	build := logger.NewBuild().Level(level).Pretty(true).FromBuffer(cmd.ErrOrStderr())
	if a.logFile != "" {
		build = build.FromPath(a.logFile).Pretty(false)
	}
	logData, err := build.Make()
	if err != nil {
		return err
	}
	a.log = logData

	a.registry = models.NewRegistry(models.BaseModel)
	sources.Register(a.registry)
	for _, path := range a.typeFiles {
		if err := schemafile.Load(path, a.registry); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		a.log.Debug("loaded schema file", "path", path)
	}

	colored, err := a.useColor()
	if err != nil {
		return err
	}
	a.palette = newPalette(colored)
	return nil
}

func (a *app) useColor() (bool, error) {
	switch a.colorMode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		f, ok := a.out.(*os.File)
		return ok && isatty.IsTerminal(f.Fd()), nil
	}
	return false, errNoColorMode
}

func (a *app) documentOptions() []modelsync.Option {
	return []modelsync.Option{modelsync.WithRegistry(a.registry), modelsync.WithLogger(a.log)}
}

func (a *app) loadDocument(path string) (*modelsync.Document, error) {
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d, err := modelsync.FromJSON(snap, a.documentOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect SNAPSHOT",
		Short: "Summarize the roots and models of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDocument(args[0])
			if err != nil {
				return err
			}
			a.printDocument(d)
			return nil
		},
	}
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		setterID string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "apply SNAPSHOT PATCH...",
		Short: "Apply patches in order and write the resulting snapshot",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDocument(args[0])
			if err != nil {
				return err
			}
			for _, path := range args[1:] {
				p, err := readPatch(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := d.ApplyJSONPatch(p, setterID); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a.log.Info("applied patch", "path", path, "events", len(p.Events))
			}
			return a.writeOutput(output, d.ToJSON(false))
		},
	}
	cmd.Flags().StringVar(&setterID, "setter", "modelsync", "setter id recorded on applied changes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the snapshot here instead of stdout")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	var (
		output string
		list   bool
	)
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compute the patch that brings OLD up to date with NEW",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := readSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			d, err := a.loadDocument(args[1])
			if err != nil {
				return err
			}
			p, err := d.ComputePatchSinceJSON(old)
			if err != nil {
				return err
			}
			if list {
				a.printPatch(p)
				return nil
			}
			return a.writeOutput(output, p)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the patch here instead of stdout")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list the events instead of writing the patch")
	return cmd
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered model types and their attributes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range a.registry.Names() {
				s, _ := a.registry.Schema(name)
				fmt.Fprintln(a.out, a.palette.typ(name))
				for _, def := range s.Attrs() {
					line := fmt.Sprintf("  %s %s", def.Name, a.palette.faint(def.Policy.Name()))
					if def.Internal {
						line += a.palette.faint(" internal")
					}
					if def.Dataspec {
						line += a.palette.faint(" dataspec")
					}
					fmt.Fprintln(a.out, line)
				}
			}
			return nil
		},
	}
}
