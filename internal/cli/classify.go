package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindlog-lab/mindlog/internal/classify"
)

var classifyJSON bool

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Score a message without logging it",
	Long: `Run the classifier on a message and print its sentiment score, severity
bucket and crisis flag. Nothing is written to the database.

Examples:
  mindlog classify "I have been feeling a bit low this week"
  mindlog classify --json "work is stressful"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	rules, err := loadRules()
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	c := rules.Classifier()
	res, err := c.Classify(text)
	if err != nil {
		return err
	}

	if classifyJSON {
		return printClassificationJSON(cmd.OutOrStdout(), res, c.MatchKeyword(text))
	}
	printClassification(cmd.OutOrStdout(), res, c.MatchKeyword(text))
	return nil
}

type classification struct {
	classify.Result
	Keyword string `json:"matched_keyword,omitempty"`
}

func printClassificationJSON(w io.Writer, res classify.Result, keyword string) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(classification{Result: res, Keyword: keyword})
}

func printClassification(w io.Writer, res classify.Result, keyword string) {
	fmt.Fprintf(w, "SENTIMENT: %.4f\n", res.SentimentScore)
	fmt.Fprintf(w, "SEVERITY:  %s\n", res.Severity)
	if !res.IsCrisis {
		fmt.Fprintln(w, "CRISIS:    no")
		return
	}
	if keyword != "" {
		fmt.Fprintf(w, "CRISIS:    yes (keyword %q)\n", keyword)
		return
	}
	fmt.Fprintln(w, "CRISIS:    yes (score below threshold)")
}
