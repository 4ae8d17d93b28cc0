package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studio/internal/bootstrap"
	"studio/internal/domain"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/pipeline"
	"studio/internal/qualitygate"
)

type scoreOptions struct {
	contextPath     string
	useEvaluator    bool
	showInstruction bool
}

// contextFile stands in for the enrichment providers.
type contextFile struct {
	Products []domain.Product       `json:"products"`
	Brand    *domain.BrandVoice     `json:"brand"`
	Template *domain.TemplateRecipe `json:"template"`
}

type scoreReport struct {
	Instruction string                   `json:"instruction,omitempty"`
	Result      domain.QualityGateResult `json:"result"`
}

func newScoreCmd() *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score <request.json>",
		Short: "Score a generation request and print the gate result",
		Long: `Validate and assemble a generation request, then run the quality gate.

The model evaluator (Tier 2) only runs with --evaluator and uses the same
EVALUATOR_PROVIDER settings as the api. Use "-" to read the request from stdin.

Examples:
  gatecheck score request.json
  gatecheck score --context ctx.json --evaluator request.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.contextPath, "context", "", "JSON file with products, brand and template")
	cmd.Flags().BoolVar(&opts.useEvaluator, "evaluator", false, "enable the model evaluator")
	cmd.Flags().BoolVar(&opts.showInstruction, "show-instruction", false, "include the assembled instruction in the output")
	return cmd
}

func runScore(ctx context.Context, stdin io.Reader, out io.Writer, requestPath string, opts *scoreOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var req domain.GenerationRequest
	if err := readJSON(requestPath, stdin, &req); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	mode, err := domain.ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode
	if err := pipeline.Validate(req, 0); err != nil {
		return err
	}

	var bag domain.StageContext
	if opts.contextPath != "" {
		var cf contextFile
		if err := readJSON(opts.contextPath, stdin, &cf); err != nil {
			return fmt.Errorf("read context: %w", err)
		}
		bag.SetProducts(cf.Products)
		bag.SetBrand(cf.Brand)
		bag.SetTemplate(cf.Template)
	}
	bag.SetRecipe(req.Recipe)

	cfg, err := infra.LoadToolConfig()
	if err != nil {
		return err
	}
	var eval qualitygate.Evaluator
	if opts.useEvaluator {
		if eval, err = bootstrap.NewEvaluator(ctx, cfg, zerolog.Nop()); err != nil {
			return err
		}
		if eval == nil {
			return errors.New("--evaluator needs EVALUATOR_PROVIDER and its API key")
		}
	}

	instruction := imagegen.Assemble(req, bag)
	gate := qualitygate.New(qualitygate.Options{Config: cfg.GateConfig(), Evaluator: eval, Logger: zerolog.Nop()})
	report := scoreReport{Result: gate.Evaluate(ctx, qualitygate.Input{Instruction: instruction, Context: bag, TemplateID: req.TemplateID})}
	if opts.showInstruction {
		report.Instruction = instruction.Text
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func readJSON(path string, stdin io.Reader, dst any) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return json.NewDecoder(r).Decode(dst)
}
