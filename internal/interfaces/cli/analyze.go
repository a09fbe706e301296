package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/classify/terms"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// analyzeOutput is the offline preview of the first two pipeline stages.
type analyzeOutput struct {
	Query       string                       `json:"query"`
	Analysis    classify.TermAnalysis        `json:"analysis"`
	Predictions []classify.ChapterPrediction `json:"predictions"`
	Ambiguous   bool                         `json:"ambiguous"`
	Question    string                       `json:"question,omitempty"`
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var rulesDir string

	cmd := &cobra.Command{
		Use:   "analyze <query>",
		Short: "Preview term analysis and chapter prediction for a query",
		Long: `analyze runs the offline pipeline stages against the embedded (or
overridden) rules without touching any backend: useful for tuning rule files
and understanding why a query lands in a chapter.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			var (
				rs  *rules.RuleSet
				err error
			)
			if rulesDir != "" {
				rs, err = rules.LoadFromDir(rulesDir)
			} else {
				rs, err = rules.Load()
			}
			if err != nil {
				return err
			}

			logger := logging.NewNopLogger()
			provider := rules.NewProvider(rs, logger)
			defer provider.Close()

			scoring := config.NewDefaultConfig().Scoring
			analysis := terms.NewAnalyzer(provider, logger).Analyze(query)
			prediction := chapter.NewPredictor(provider, scoring, logger).Predict(query)

			out, err := json.MarshalIndent(analyzeOutput{
				Query:       query,
				Analysis:    analysis,
				Predictions: prediction.Predictions,
				Ambiguous:   prediction.Ambiguous,
				Question:    prediction.Question,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesDir, "rules", "", "directory of YAML rule files overriding the embedded defaults")
	return cmd
}
