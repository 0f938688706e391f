package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/selector"
	"github.com/spf13/cobra"
)

type taskFlags struct {
	taskType string
	prefer   []string
	avoid    []string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.taskType, "task-type", "t", "", "task type hint (summary, translation, analysis, general, coding)")
	cmd.Flags().StringSliceVar(&f.prefer, "prefer", nil, "only consider these model names")
	cmd.Flags().StringSliceVar(&f.avoid, "avoid", nil, "never pick these model names")
}

func (f *taskFlags) task(args []string) *domain.Task {
	task := &domain.Task{
		Input:    strings.Join(args, " "),
		TaskType: domain.TaskType(f.taskType),
	}
	if len(f.prefer) > 0 || len(f.avoid) > 0 {
		task.Preferences = &domain.ModelPreferences{PreferredModels: f.prefer, AvoidModels: f.avoid}
	}
	return task
}

func newRouteCmd() *cobra.Command {
	var flags taskFlags

	cmd := &cobra.Command{
		Use:   "route <input>",
		Short: "Route one input and print the decision as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			task := flags.task(args)
			result, err := a.router.RouteTask(ctx, task)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				TaskID string `json:"task_id"`
				*domain.RouteResult
			}{task.ID, result})
		},
	}
	flags.register(cmd)
	return cmd
}

func newExplainCmd() *cobra.Command {
	var flags taskFlags

	cmd := &cobra.Command{
		Use:   "explain <input>",
		Short: "Show every eligible model ranked by score",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			candidates, taskType, err := a.router.Explain(flags.task(args))
			if err != nil {
				return err
			}
			return writeCandidates(cmd.OutOrStdout(), taskType, candidates)
		},
	}
	flags.register(cmd)
	return cmd
}

func writeCandidates(out io.Writer, taskType domain.TaskType, candidates []selector.Candidate) error {
	fmt.Fprintf(out, "task type: %s\n\n", taskType)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tMODEL\tPROVIDER\tSCORE\tQUALITY\tSPEED\tCOST/TOKEN")
	for i, c := range candidates {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\t%d\t%g\n",
			i+1, c.Model.Name, c.Model.Provider, c.Score,
			c.Model.QualityRating, c.Model.SpeedRating, c.Model.CostPerToken)
	}
	return w.Flush()
}

func newModelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the available models in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			models := a.router.AvailableModels()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(models)
			}
			return writeModels(cmd.OutOrStdout(), models)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeModels(out io.Writer, models []domain.Model) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tQUALITY\tSPEED\tCOST/TOKEN\tTASKS")
	for _, m := range models {
		tasks := make([]string, len(m.SupportedTasks))
		for i, t := range m.SupportedTasks {
			tasks[i] = string(t)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%g\t%s\n",
			m.ID, m.Name, m.Provider, m.QualityRating, m.SpeedRating, m.CostPerToken, strings.Join(tasks, ","))
	}
	return w.Flush()
}

