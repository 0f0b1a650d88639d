package command

import (
	"fmt"
	"slices"
	"time"

	"github.com/AnatoleLucet/render"
	"github.com/AnatoleLucet/render/circuit"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

type RenderOptions struct {
	Output  string
	Tree    bool
	Timings bool
	Metrics bool
}

func NewRenderCommand(cli *CLI) *cobra.Command {
	opts := RenderOptions{Output: OutputText}

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Compile a TOML circuit description",
		Long: Highlight("render render <file>") + "\n\n" +
			"Renders the circuit described in <file> until it settles and prints\n" +
			"the resulting records. Errors reported by the circuit make the\n" +
			"command fail after the document has been printed.\n",
		Args: ExactArgsWithUsage(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output != OutputText && opts.Output != OutputJSON {
				return fmt.Errorf("invalid output format %q, expected %s or %s", opts.Output, OutputText, OutputJSON)
			}

			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			desc, err := circuit.LoadDescription(args[0])
			if err != nil {
				return err
			}

			env := circuit.NewEnv(cfg, cli.Logger)
			env.Metrics = opts.Metrics

			result, err := circuit.Compile(cmd.Context(), desc, env, render.WithConfig(cfg))
			if err != nil {
				return errors.Wrapf(err, "render %s", args[0])
			}

			if opts.Output == OutputJSON {
				body, err := result.Document.JSON()
				if err != nil {
					return err
				}
				cli.Println(string(body))
			} else {
				printSummary(cli, desc, result)
			}

			if opts.Tree {
				cli.Println()
				cli.Printf("%s", nodeTree(result.Root))
			}
			if opts.Timings {
				cli.Println()
				printTimings(cli, result.Report)
			}

			return result.Document.Err()
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", OutputText, "Output format. One of: (text | json)")
	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "Print the rendered node tree")
	cmd.Flags().BoolVar(&opts.Timings, "timings", false, "Print the time spent in each phase")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "Record the render in the prometheus collectors")
	return cmd
}

func printSummary(cli *CLI, desc circuit.Description, result *circuit.Result) {
	doc := result.Document
	errs := len(doc.Filter(render.SeverityError.String()))
	warnings := len(doc.Filter(render.SeverityWarning.String()))

	cli.Printf("%s: %d records, %d errors, %d warnings in %d sweeps\n",
		Highlight("%s", desc.Name), len(doc.Records), errs, warnings, result.Sweeps)

	counts := map[string]int{}
	for _, r := range doc.Records {
		counts[r.Type]++
	}
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	slices.Sort(types)

	tbl := table.New("Record", "Count").WithWriter(cli.Out)
	tbl.WithHeaderFormatter(color.New(color.FgGreen, color.Underline).SprintfFunc())
	tbl.WithFirstColumnFormatter(color.New(color.FgYellow).SprintfFunc())
	for _, typ := range types {
		tbl.AddRow(typ, counts[typ])
	}
	cli.Println()
	tbl.Print()

	if errs+warnings == 0 {
		return
	}
	cli.Println()
	for _, r := range doc.Records {
		switch r.Type {
		case render.SeverityError.String():
			cli.Printf("%s %s: %v\n", color.RedString("error:"), r.Name, r.Fields["message"])
		case render.SeverityWarning.String():
			cli.Printf("%s %s: %v\n", color.YellowString("warning:"), r.Name, r.Fields["message"])
		}
	}
}

func printTimings(cli *CLI, report *render.Report) {
	tbl := table.New("Phase", "Runs", "Total", "Max").WithWriter(cli.Out)
	tbl.WithHeaderFormatter(color.New(color.FgGreen, color.Underline).SprintfFunc())
	tbl.WithFirstColumnFormatter(color.New(color.FgYellow).SprintfFunc())

	for _, row := range report.Rows() {
		tbl.AddRow(row.Phase, row.Runs, row.Total.Round(time.Microsecond), row.Max.Round(time.Microsecond))
	}
	tbl.AddRow("total", report.Runs(), report.Total().Round(time.Microsecond), "")
	tbl.Print()
}

func nodeTree(root *render.Node) string {
	tree := treeprint.NewWithRoot(nodeLabel(root))
	addBranches(tree, root)
	return tree.String()
}

func addBranches(branch treeprint.Tree, n *render.Node) {
	for child := range n.Children() {
		if child.ChildCount() == 0 {
			branch.AddNode(nodeLabel(child))
			continue
		}
		addBranches(branch.AddBranch(nodeLabel(child)), child)
	}
}

func nodeLabel(n *render.Node) string {
	label := n.DisplayName()
	if d := len(n.Diagnostics()); d > 0 {
		label += fmt.Sprintf(" (%d diagnostics)", d)
	}
	return label
}
