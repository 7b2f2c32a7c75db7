// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/DataBiosphere/dsub-sub000/pkg/job"
	"github.com/DataBiosphere/dsub-sub000/pkg/logging"
	"github.com/DataBiosphere/dsub-sub000/pkg/params"
	"github.com/DataBiosphere/dsub-sub000/pkg/provider"
	"github.com/DataBiosphere/dsub-sub000/pkg/wait"
	"github.com/spf13/cobra"
)

var (
	scriptPath string
	command    string
	jobName    string
	userID     string

	envFlags             []string
	labelFlags           []string
	inputFlags           []string
	inputRecursiveFlags  []string
	outputFlags          []string
	outputRecursiveFlags []string
	mountFlags           []string

	tasksFile string
	taskRange string

	image        string
	loggingDest  string
	minCores     int
	minRAM       float64
	bootDiskSize int
	diskSize     int
	diskType     string
	machineType  string
	zones        []string
	regions      []string
	timeout      time.Duration
	retries      int
	preemptible  = job.PreemptibleNever()

	afterJobs           []string
	waitForJob          bool
	skipIfOutputPresent bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&scriptPath, "script", "", "Path of the script to run inside the container.")
	runCmd.Flags().StringVar(&command, "command", "", "Shell command to run inside the container, instead of --script.")
	runCmd.Flags().StringVar(&jobName, "name", "", "Job name. Defaults to the script's base name.")
	runCmd.Flags().StringVar(&userID, "user", "", "User the job runs as. Defaults to the current user.")

	runCmd.Flags().StringArrayVar(&envFlags, "env", nil, "Environment variable, as NAME=VALUE. Repeatable.")
	runCmd.Flags().StringArrayVar(&labelFlags, "label", nil, "Label to attach to the job, as NAME=VALUE. Repeatable.")
	runCmd.Flags().StringArrayVar(&inputFlags, "input", nil, "Input file, as [NAME=]URI. Repeatable.")
	runCmd.Flags().StringArrayVar(&inputRecursiveFlags, "input-recursive", nil, "Input directory tree, as [NAME=]URI. Repeatable.")
	runCmd.Flags().StringArrayVar(&outputFlags, "output", nil, "Output file or wildcard pattern, as [NAME=]URI. Repeatable.")
	runCmd.Flags().StringArrayVar(&outputRecursiveFlags, "output-recursive", nil, "Output directory tree, as [NAME=]URI. Repeatable.")
	runCmd.Flags().StringArrayVar(&mountFlags, "mount", nil, "Read-only directory to make visible to the container, as [NAME=]URI. Repeatable.")

	runCmd.Flags().StringVar(&tasksFile, "tasks", "", "Tab-separated task table; one task per data row.")
	runCmd.Flags().StringVar(&taskRange, "task-range", "", "Inclusive 1-based range of task-table rows to run, as M, M-, or M-N.")

	runCmd.Flags().StringVar(&image, "image", "ubuntu:22.04", "Docker image the tasks run in.")
	runCmd.Flags().StringVar(&loggingDest, "logging", "", "Log destination: a directory, or a .log path with {job-id}-style placeholders. Required.")
	runCmd.Flags().IntVar(&minCores, "min-cores", 0, "Minimum CPU cores per task.")
	runCmd.Flags().Float64Var(&minRAM, "min-ram", 0, "Minimum RAM per task, in GB.")
	runCmd.Flags().IntVar(&bootDiskSize, "boot-disk-size", 0, "Boot disk size, in GB.")
	runCmd.Flags().IntVar(&diskSize, "disk-size", 0, "Data disk size, in GB.")
	runCmd.Flags().StringVar(&diskType, "disk-type", "", "Data disk type.")
	runCmd.Flags().StringVar(&machineType, "machine-type", "", "Machine type to run on.")
	runCmd.Flags().StringSliceVar(&zones, "zones", nil, "Zones the tasks may run in.")
	runCmd.Flags().StringSliceVar(&regions, "regions", nil, "Regions the tasks may run in.")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Maximum task runtime before it is failed.")
	runCmd.Flags().IntVar(&retries, "retries", 0, "Number of times a failed task is resubmitted. Implies waiting.")
	runCmd.Flags().Var(&preemptible, "preemptible", "Preemptible policy: true, false, or the number of attempts run preemptible before falling back.")

	runCmd.Flags().StringSliceVar(&afterJobs, "after", nil, "Job ids that must succeed before this job starts.")
	runCmd.Flags().BoolVar(&waitForJob, "wait", false, "Block until the job completes.")
	runCmd.Flags().BoolVar(&skipIfOutputPresent, "skip", false, "Do not launch tasks whose outputs already exist.")

	_ = runCmd.MarkFlagRequired("logging")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submits a script or command as a containerized batch job.",
	Long: `The 'run' command submits one job to the selected provider. A job runs a
single --script or --command, or one task per row of a --tasks table. Inputs
are localized into the container's data mount before the script starts and
outputs are delocalized after it exits.`,
	Run:          runRunCmd,
	SilenceUsage: true,
}

func runRunCmd(cmd *cobra.Command, args []string) {
	prov, err := newProvider()
	if err != nil {
		logging.Fatal("%v", err)
	}

	script, err := loadScript()
	if err != nil {
		logging.Fatal("%v", err)
	}

	poller := wait.NewPoller(prov)
	if len(afterJobs) > 0 {
		if msgs := poller.WaitAfter(cmd.Context(), afterJobs, true); len(msgs) > 0 {
			logging.Error("%v", &wait.PredecessorFailureError{Messages: msgs})
			fmt.Println(provider.NoJob)
			os.Exit(1)
		}
	}

	jd, err := buildJob(prov, script)
	if err != nil {
		logging.Fatal("%v", err)
	}

	result, err := prov.SubmitJob(cmd.Context(), jd, skipIfOutputPresent)
	if err != nil {
		logging.Fatal("%v", err)
	}
	if result.JobID == provider.NoJob {
		logging.Info("all task outputs are already present; nothing to run")
		fmt.Println(result.JobID)
		return
	}
	logging.Info("launched job %s (%d task(s))", result.JobID, len(result.TaskIDs))
	fmt.Println(result.JobID)

	if waitForJob || retries > 0 {
		var msgs []string
		if retries > 0 {
			msgs = poller.WaitAndRetry(cmd.Context(), jd)
		} else {
			msgs = poller.WaitAfter(cmd.Context(), []string{result.JobID}, false)
		}
		if len(msgs) > 0 {
			logging.Fatal("%v", &wait.WaitFailureError{Messages: msgs, JobMeta: jd.Metadata})
		}
		logging.Info("job %s completed successfully", result.JobID)
	}
}

// loadScript materializes the task script from --script or --command.
func loadScript() (*job.Script, error) {
	switch {
	case scriptPath != "" && command != "":
		return nil, params.Validationf("cannot provide both --script and --command")
	case scriptPath != "":
		content, err := os.ReadFile(scriptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read script %q: %w", scriptPath, err)
		}
		return &job.Script{Name: filepath.Base(scriptPath), Value: string(content)}, nil
	case command != "":
		value := "#!/usr/bin/env bash\nset -o errexit\nset -o nounset\n\n" + command + "\n"
		return &job.Script{Name: "command.sh", Value: value}, nil
	default:
		return nil, params.Validationf("either --script or --command is required")
	}
}

// buildJob assembles the validated JobDescriptor from the submit flags.
func buildJob(prov provider.Provider, script *job.Script) (*job.JobDescriptor, error) {
	meta, err := prov.PrepareJobMetadata(script.Name, jobName, userID)
	if err != nil {
		return nil, err
	}
	meta.Script = script

	jobParams, err := parseJobParams()
	if err != nil {
		return nil, err
	}

	if err := preemptible.Validate(retries); err != nil {
		return nil, err
	}
	res := job.Resources{
		MinCores:     minCores,
		MinRAM:       minRAM,
		BootDiskSize: bootDiskSize,
		DiskSize:     diskSize,
		DiskType:     diskType,
		Image:        image,
		MachineType:  machineType,
		Zones:        zones,
		Regions:      regions,
		Timeout:      timeout,
		Retries:      retries,
		Preemptible:  preemptible,
		Logging:      loggingDest,
	}

	var tasks []job.TaskDescriptor
	if tasksFile != "" {
		rng, err := parseTaskRange(taskRange)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(tasksFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open task table %q: %w", tasksFile, err)
		}
		defer f.Close()
		rows, err := params.ParseTaskTable(f, rng)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			tasks = append(tasks, job.TaskFromRow(row, res, meta.CreateTime))
		}
		if len(tasks) == 0 {
			return nil, params.Validationf("task table %q selects no tasks", tasksFile)
		}
	} else {
		tasks = []job.TaskDescriptor{job.ImplicitTask(res, meta.CreateTime)}
	}

	return job.New(meta, jobParams, res, tasks)
}

// parseJobParams parses the job-level --env/--label/--input/--output/--mount
// flags with one shared parser so auto-assigned names stay ordinal across
// the whole submission.
func parseJobParams() (job.Params, error) {
	var p job.Params
	parser := params.NewParser()

	for _, raw := range envFlags {
		name, value, err := splitNameValue(raw, true)
		if err != nil {
			return job.Params{}, err
		}
		env, err := params.NewEnvParam(name, value)
		if err != nil {
			return job.Params{}, err
		}
		p.Envs = append(p.Envs, env)
	}
	for _, raw := range labelFlags {
		name, value, err := splitNameValue(raw, true)
		if err != nil {
			return job.Params{}, err
		}
		label, err := params.NewLabelParam(name, value, false)
		if err != nil {
			return job.Params{}, err
		}
		p.Labels = append(p.Labels, label)
	}

	parseFiles := func(raws []string, recursive bool, parse func(name, raw string, recursive bool) (params.FileParam, error)) ([]params.FileParam, error) {
		var out []params.FileParam
		for _, raw := range raws {
			name, value, err := splitNameValue(raw, false)
			if err != nil {
				return nil, err
			}
			fp, err := parse(name, value, recursive)
			if err != nil {
				return nil, err
			}
			out = append(out, fp)
		}
		return out, nil
	}

	var err error
	if p.Inputs, err = parseFiles(inputFlags, false, parser.ParseInput); err != nil {
		return job.Params{}, err
	}
	recursiveInputs, err := parseFiles(inputRecursiveFlags, true, parser.ParseInput)
	if err != nil {
		return job.Params{}, err
	}
	p.Inputs = append(p.Inputs, recursiveInputs...)

	if p.Outputs, err = parseFiles(outputFlags, false, parser.ParseOutput); err != nil {
		return job.Params{}, err
	}
	recursiveOutputs, err := parseFiles(outputRecursiveFlags, true, parser.ParseOutput)
	if err != nil {
		return job.Params{}, err
	}
	p.Outputs = append(p.Outputs, recursiveOutputs...)

	mounts, err := parseFiles(mountFlags, false, func(name, raw string, _ bool) (params.FileParam, error) {
		return parser.ParseMount(name, raw)
	})
	if err != nil {
		return job.Params{}, err
	}
	p.Mounts = mounts

	return p, nil
}

// splitNameValue splits a NAME=VALUE flag. With requireName unset the name
// part is optional: a value with no separator gets an auto-assigned name.
func splitNameValue(raw string, requireName bool) (name, value string, err error) {
	i := strings.Index(raw, "=")
	if i < 0 {
		if requireName {
			return "", "", params.Validationf("invalid flag value %q: expected NAME=VALUE", raw)
		}
		return "", raw, nil
	}
	return raw[:i], raw[i+1:], nil
}

// parseTaskRange parses the --task-range forms M, M-, and M-N.
func parseTaskRange(s string) (params.TaskRange, error) {
	if s == "" {
		return params.TaskRange{}, nil
	}
	parse := func(part string) (int, error) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return 0, params.Validationf("invalid task range %q", s)
		}
		return n, nil
	}

	min, max := s, ""
	if i := strings.Index(s, "-"); i >= 0 {
		min, max = s[:i], s[i+1:]
	} else {
		max = s
	}
	var rng params.TaskRange
	var err error
	if rng.Min, err = parse(min); err != nil {
		return params.TaskRange{}, err
	}
	if max != "" {
		if rng.Max, err = parse(max); err != nil {
			return params.TaskRange{}, err
		}
		if rng.Max < rng.Min {
			return params.TaskRange{}, params.Validationf("invalid task range %q", s)
		}
	}
	return rng, nil
}
