package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"variantcore/internal/assignment"
	"variantcore/internal/experiment"
	"variantcore/internal/feature"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintFlags outputs flags in the specified format
func PrintFlags(flags []feature.Flag, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string][]feature.Flag{"flags": flags})
	case FormatYAML:
		return printYAML(flags)
	case FormatTable:
		return printFlagTable(flags)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintFlag outputs a single flag in the specified format
func PrintFlag(flag *feature.Flag, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(flag)
	case FormatYAML:
		return printYAML(flag)
	case FormatTable:
		return printFlagTable([]feature.Flag{*flag})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintExperiments outputs experiments in the specified format
func PrintExperiments(experiments []experiment.Experiment, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string][]experiment.Experiment{"experiments": experiments})
	case FormatYAML:
		return printYAML(experiments)
	case FormatTable:
		return printExperimentTable(experiments)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintAssignments outputs assignments in the specified format
func PrintAssignments(assignments []assignment.Assignment, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(map[string][]assignment.Assignment{"assignments": assignments})
	case FormatYAML:
		return printYAML(assignments)
	case FormatTable:
		return printAssignmentTable(assignments)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintJSON outputs any value as indented JSON
func PrintJSON(v any) error {
	return printJSON(v)
}

func printJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(data any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printFlagTable(flags []feature.Flag) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Key", "Name", "Enabled", "Rollout", "Conditions", "Description")

	for _, flag := range flags {
		description := flag.Description
		if len(description) > 40 {
			description = description[:37] + "..."
		}

		table.Append(
			flag.Key,
			flag.Name,
			strconv.FormatBool(flag.Enabled),
			fmt.Sprintf("%d%%", flag.RolloutPercent()),
			strconv.Itoa(len(flag.Conditions)),
			description,
		)
	}

	return table.Render()
}

func printExperimentTable(experiments []experiment.Experiment) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Status", "Traffic", "Variants", "Start Date")

	for _, exp := range experiments {
		names := make([]string, len(exp.Variants))
		for i, v := range exp.Variants {
			names[i] = v.ID
		}

		table.Append(
			exp.ID,
			exp.Name,
			string(exp.Status),
			fmt.Sprintf("%d%%", exp.TrafficAllocation),
			strings.Join(names, ","),
			exp.StartDate.Format("2006-01-02"),
		)
	}

	return table.Render()
}

func printAssignmentTable(assignments []assignment.Assignment) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Experiment", "Variant", "User", "Session", "Assigned At")

	for _, a := range assignments {
		table.Append(
			a.ExperimentID,
			a.VariantID,
			a.UserID,
			a.SessionID,
			a.AssignedAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}
