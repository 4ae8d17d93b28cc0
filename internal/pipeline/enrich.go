package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
)

// Enrichment stage names, in the order their results are applied.
const (
	enrichProduct  = "product"
	enrichBrand    = "brand"
	enrichTemplate = "template"
)

// enrichment is the explicit result of one context stage. Exactly one of
// apply or err is meaningful; both empty means there was nothing to fetch.
type enrichment struct {
	stage string
	apply func(*domain.StageContext)
	err   error
}

func (e enrichment) skipped() bool { return e.apply == nil && e.err == nil }

// enrich runs the three context stages concurrently and applies whatever came
// back in canonical order. It never fails; degraded stages are returned by name.
// A stage that misses its deadline is degraded even if its provider ignores
// ctx, and its late result is discarded.
func (p *Pipeline) enrich(ctx context.Context, req domain.GenerationRequest) (domain.StageContext, []string) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+StageEnrich)
	defer span.End()

	stages := []struct {
		name string
		run  stageFunc
	}{
		{enrichProduct, p.enrichProducts},
		{enrichBrand, p.enrichBrand},
		{enrichTemplate, p.enrichTemplate},
	}
	results := make([]enrichment, len(stages))

	var g errgroup.Group
	for i, stage := range stages {
		g.Go(func() error {
			stageCtx, cancel := context.WithTimeout(ctx, p.timeouts.Enrich)
			defer cancel()
			done := make(chan enrichment, 1)
			go func() { done <- runStage(stageCtx, stage.name, stage.run, req) }()
			select {
			case res := <-done:
				results[i] = res
			case <-stageCtx.Done():
				select {
				case res := <-done:
					results[i] = res
				default:
					results[i] = abandoned(stage.name, req, stageCtx.Err())
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var (
		bag      domain.StageContext
		degraded []string
	)
	for _, res := range results {
		if res.skipped() {
			p.logger.Debug().Str("request_id", req.RequestID).Str("stage", res.stage).Msg("pipeline: enrichment skipped")
			continue
		}
		if res.err != nil {
			degraded = append(degraded, res.stage)
			p.logger.Warn().
				Err(&ContextProviderError{Stage: res.stage, Err: res.err}).
				Str("request_id", req.RequestID).
				Str("stage", res.stage).
				Msg("pipeline: enrichment degraded, continuing without it")
		}
		if res.apply != nil {
			res.apply(&bag)
		}
	}
	span.SetAttributes(
		attribute.Bool("enrich.products", bag.HasProducts()),
		attribute.Bool("enrich.brand", bag.HasBrand()),
		attribute.Bool("enrich.template", bag.HasTemplate()),
		attribute.StringSlice("enrich.degraded", degraded),
	)
	return bag, degraded
}

type stageFunc func(context.Context, domain.GenerationRequest) enrichment

// abandoned is the result of a stage that did not return in time. The inline
// recipe needs no lookup, so it still applies when the template stage stalls.
func abandoned(name string, req domain.GenerationRequest, cause error) enrichment {
	res := enrichment{stage: name, err: fmt.Errorf("%s lookup abandoned: %w", name, cause)}
	if recipe := req.Recipe; name == enrichTemplate && !recipe.Empty() {
		res.apply = func(bag *domain.StageContext) { bag.SetRecipe(recipe) }
	}
	return res
}

// runStage isolates a stage so a panicking provider degrades like any other failure.
func runStage(ctx context.Context, name string, stage stageFunc, req domain.GenerationRequest) (res enrichment) {
	defer func() {
		if r := recover(); r != nil {
			res = enrichment{stage: name, err: fmt.Errorf("provider panic: %v", r)}
		}
	}()
	return stage(ctx, req)
}

func (p *Pipeline) enrichProducts(ctx context.Context, req domain.GenerationRequest) enrichment {
	res := enrichment{stage: enrichProduct}
	ids := nonEmpty(req.ProductIDs)
	if len(ids) == 0 {
		return res
	}
	if p.products == nil {
		res.err = errors.New("no product provider configured")
		return res
	}
	products, err := p.products.FetchProducts(ctx, ids)
	if err != nil {
		res.err = err
		return res
	}
	if len(products) == 0 {
		res.err = domain.ErrNotFound
		return res
	}
	res.apply = func(bag *domain.StageContext) { bag.SetProducts(products) }
	return res
}

func (p *Pipeline) enrichBrand(ctx context.Context, req domain.GenerationRequest) enrichment {
	res := enrichment{stage: enrichBrand}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || p.brands == nil {
		return res
	}
	brand, err := p.brands.FetchBrand(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// no brand configured for this user
	case err != nil:
		res.err = err
	case brand != nil:
		res.apply = func(bag *domain.StageContext) { bag.SetBrand(brand) }
	}
	return res
}

// enrichTemplate resolves the stored template and applies the inline recipe,
// which needs no I/O and survives a failed template lookup.
func (p *Pipeline) enrichTemplate(ctx context.Context, req domain.GenerationRequest) enrichment {
	res := enrichment{stage: enrichTemplate}
	var tpl *domain.TemplateRecipe
	if templateID := strings.TrimSpace(req.TemplateID); templateID != "" {
		if p.templates == nil {
			res.err = errors.New("no template provider configured")
		} else {
			found, err := p.templates.FetchTemplate(ctx, templateID)
			switch {
			case err != nil:
				res.err = err
			case found == nil:
				res.err = domain.ErrNotFound
			default:
				tpl = found
			}
		}
	}
	recipe := req.Recipe
	if tpl == nil && recipe.Empty() {
		return res
	}
	res.apply = func(bag *domain.StageContext) {
		if tpl != nil {
			bag.SetTemplate(tpl)
		}
		if !recipe.Empty() {
			bag.SetRecipe(recipe)
		}
	}
	return res
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
