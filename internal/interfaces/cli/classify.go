package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

type classifyOptions struct {
	serverURL   string
	interactive bool
	timeout     time.Duration
}

func newClassifyCommand(_ *rootOptions) *cobra.Command {
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Classify a product description against a running server",
		Long: `classify sends the query to a tariffwise server and prints the outcome.
With --interactive, clarifying questions are answered from stdin until the
conversation reaches a result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &apiClient{
				baseURL: strings.TrimRight(opts.serverURL, "/"),
				http:    &http.Client{Timeout: opts.timeout},
			}
			return runClassify(cmd, client, strings.Join(args, " "), opts.interactive)
		},
	}

	cmd.Flags().StringVar(&opts.serverURL, "server", "http://localhost:8080", "base URL of the tariffwise server")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "answer clarifying questions from stdin")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	return cmd
}

func runClassify(cmd *cobra.Command, client *apiClient, query string, interactive bool) error {
	out := cmd.OutOrStdout()

	outcome, err := client.classify(query)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for interactive && outcome.Type == classify.OutcomeQuestion {
		printQuestion(out, outcome.Question)
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			break
		}
		outcome, err = client.answer(outcome.ConversationID, outcome.Question.ID, answer)
		if err != nil {
			return err
		}
	}

	return printOutcome(out, outcome)
}

func printQuestion(w io.Writer, q *classify.SmartQuestion) {
	fmt.Fprintln(w, q.Text)
	for i, opt := range q.Differential.Options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt.DisplayText)
	}
}

func printOutcome(w io.Writer, outcome classify.ClassifyOutcome) error {
	switch outcome.Type {
	case classify.OutcomeResult:
		fmt.Fprintf(w, "code:        %s\n", outcome.Result.Code)
		fmt.Fprintf(w, "description: %s\n", outcome.Result.Description)
		fmt.Fprintf(w, "confidence:  %.0f\n", outcome.Result.Confidence)
		if outcome.Result.Reasoning != "" {
			fmt.Fprintf(w, "reasoning:   %s\n", outcome.Result.Reasoning)
		}
		for _, alt := range outcome.Result.Alternatives {
			fmt.Fprintf(w, "alternative: %s (%.0f)\n", alt.Code, alt.Confidence)
		}
		return nil
	case classify.OutcomeNeedMoreInfo:
		fmt.Fprintln(w, outcome.Message)
		return nil
	default:
		// Non-interactive question outcome: emit the raw JSON so the
		// caller can continue the conversation itself.
		raw, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(raw))
		return nil
	}
}

// apiClient is a minimal client for the classification API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) classify(query string) (classify.ClassifyOutcome, error) {
	return c.post("/api/v1/classify", map[string]string{"query": query})
}

func (c *apiClient) answer(conversationID, questionID, answer string) (classify.ClassifyOutcome, error) {
	return c.post("/api/v1/conversations/"+conversationID+"/answer", map[string]string{
		"question_id": questionID,
		"answer":      answer,
	})
}

func (c *apiClient) post(path string, payload interface{}) (classify.ClassifyOutcome, error) {
	var outcome classify.ClassifyOutcome

	body, err := json.Marshal(payload)
	if err != nil {
		return outcome, err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return outcome, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return outcome, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return outcome, fmt.Errorf("server: %s (%s)", apiErr.Message, apiErr.Code)
		}
		return outcome, fmt.Errorf("server returned %s", resp.Status)
	}
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return outcome, fmt.Errorf("malformed server response: %w", err)
	}
	return outcome, nil
}
