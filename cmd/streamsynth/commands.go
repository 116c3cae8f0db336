package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/streamsynth/internal/config"
	"github.com/kingrea/streamsynth/internal/graph"
	"github.com/kingrea/streamsynth/internal/metrics"
	"github.com/kingrea/streamsynth/internal/synth"
	"github.com/kingrea/streamsynth/internal/tui"
)

// stdinPath names standard input as a graph source.
const stdinPath = "-"

// runViewer starts the interactive plan viewer. Tests replace it.
var runViewer = tui.Run

func newSynthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth GRAPH...",
		Short: "Synthesize plans for graph definitions",
		Long: `synth writes one plan per graph definition into output.dir, named after
the graph id. A GRAPH of "-" reads the definition from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()
			recorder := metrics.New()
			jobs, _ := cmd.Flags().GetInt("jobs")
			toStdout, _ := cmd.Flags().GetBool("stdout")

			s := synth.New(synth.FromConfig(cfg), logger, recorder)
			plans, err := synthesizeAll(cmd.Context(), s, args, jobs, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if !toStdout {
				if err := checkDistinctGraphs(plans, args); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for i, plan := range plans {
				if toStdout {
					if i > 0 {
						fmt.Fprintln(out, "---")
					}
					if err := plan.Encode(out); err != nil {
						return err
					}
					continue
				}
				path := filepath.Join(cfg.Output.Dir, plan.Graph+".yaml")
				if err := plan.WriteFile(path); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s → %s\n", args[i], path)
			}
			logger.Printf("metrics: %s", recorder.Summary())
			return nil
		},
	}
	flags := cmd.Flags()
	addSynthFlags(flags)
	flags.String("out", "", "directory for plan files (defaults to output.dir)")
	flags.Bool("stdout", false, "print plans to stdout instead of writing files")
	flags.Int("jobs", 4, "graphs synthesized in parallel")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check GRAPH...",
		Short: "Report whether graph definitions synthesize cleanly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()
			s := synth.New(synth.FromConfig(cfg), logger, nil)

			plans := make([]*synth.Plan, len(args))
			failures := make([]error, len(args))
			stdin := cmd.InOrStdin()
			var group errgroup.Group
			for i, path := range args {
				i, path := i, path
				group.Go(func() error {
					plans[i], failures[i] = synthesizeFile(cmd.Context(), s, path, stdin)
					return nil
				})
			}
			_ = group.Wait()

			out := cmd.OutOrStdout()
			failed := 0
			for i, path := range args {
				if failures[i] != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, failures[i])
					continue
				}
				plan := plans[i]
				fmt.Fprintf(out, "ok   %s: %d fixes, %d prime-pump rounds, %d channels\n",
					path, len(plan.Balance.Fixes), len(plan.Rounds), len(plan.Channels))
			}
			if failed > 0 {
				return errors.Errorf("%d of %d graphs failed", failed, len(args))
			}
			return nil
		},
	}
	addSynthFlags(cmd.Flags())
	return cmd
}

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view FILE...",
		Short: "Browse plans interactively",
		Long: `view opens plan files in the terminal viewer. With --graph the arguments
are graph definitions, synthesized on the fly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromGraphs, _ := cmd.Flags().GetBool("graph")
			var plans []*synth.Plan
			if fromGraphs {
				cfg, err := loadSettings(cmd)
				if err != nil {
					return err
				}
				logger, err := newLogger(cmd, cfg)
				if err != nil {
					return err
				}
				defer logger.Close()
				plans, err = synthesizeAll(cmd.Context(), synth.New(synth.FromConfig(cfg), logger, nil), args, 0, cmd.InOrStdin())
				if err != nil {
					return err
				}
			} else {
				for _, path := range args {
					plan, err := synth.LoadPlanFile(path)
					if err != nil {
						return err
					}
					plans = append(plans, plan)
				}
			}
			return errors.Wrap(runViewer(plans), "viewer")
		},
	}
	cmd.Flags().Bool("graph", false, "treat arguments as graph definitions")
	addSynthFlags(cmd.Flags())
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default streamsynth.yaml into the project directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			path, err := config.WriteDefault(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration at %s\n", path)
			return nil
		},
	}
}

// synthesizeAll runs every graph file through s, at most jobs at a time, and
// returns the plans in argument order. The first failure cancels the rest.
// The path "-" reads a definition from stdin.
func synthesizeAll(ctx context.Context, s *synth.Synthesizer, paths []string, jobs int, stdin io.Reader) ([]*synth.Plan, error) {
	plans := make([]*synth.Plan, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		group.SetLimit(jobs)
	}
	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			plan, err := synthesizeFile(ctx, s, path, stdin)
			if err != nil {
				return err
			}
			plans[i] = plan
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

func synthesizeFile(ctx context.Context, s *synth.Synthesizer, path string, stdin io.Reader) (*synth.Plan, error) {
	g, err := loadGraph(path, stdin)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	plan, err := s.Run(ctx, g)
	if err != nil {
		return nil, errors.Wrapf(err, "synthesize %s", path)
	}
	return plan, nil
}

func loadGraph(path string, stdin io.Reader) (*graph.Graph, error) {
	if path != stdinPath {
		return graph.LoadFile(path)
	}
	def, err := graph.LoadDefinitionReader(stdin)
	if err != nil {
		return nil, err
	}
	return def.Build()
}

// checkDistinctGraphs fails when two inputs would write the same plan file.
func checkDistinctGraphs(plans []*synth.Plan, paths []string) error {
	seen := make(map[string]string, len(plans))
	for i, plan := range plans {
		if prev, ok := seen[plan.Graph]; ok {
			return errors.Errorf("%s and %s both define graph %q", prev, paths[i], plan.Graph)
		}
		seen[plan.Graph] = paths[i]
	}
	return nil
}
