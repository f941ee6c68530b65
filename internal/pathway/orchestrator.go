// Package pathway runs the two independent code-derivation pathways and fuses
// their outputs. Pathway A is extraction plus the deterministic rules engine;
// pathway B is an externally supplied probabilistic predictor. A pathway
// failure is contained inside that pathway's outcome; the orchestrator always
// returns a fully-formed result.
package pathway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/pulmcoder/internal/confidence"
	"github.com/gyeh/pulmcoder/internal/derive"
	"github.com/gyeh/pulmcoder/internal/logging"
	"github.com/gyeh/pulmcoder/internal/model"
	"github.com/gyeh/pulmcoder/internal/taxonomy"
)

// Extractor is the external collaborator that turns note text into a
// ClinicalActions snapshot (NER, span detection, and PHI handling live behind
// this boundary, out of this module's scope).
type Extractor interface {
	Extract(ctx context.Context, noteText string) (model.ClinicalActions, error)
}

// Predictor is the external ML/LLM collaborator. It must be safe for
// concurrent read-only invocation; the orchestrator performs no serialization
// around it.
type Predictor interface {
	PredictProba(ctx context.Context, noteText string) (map[string]float64, error)
}

// DefaultAcceptanceThreshold filters fused codes into FinalCodes.
const DefaultAcceptanceThreshold = 0.5

// Orchestrator wires the two pathways to the confidence combiner. Immutable
// after construction; concurrent Process calls for different notes need no
// locking.
type Orchestrator struct {
	extractor Extractor
	predictor Predictor
	engine    *derive.Engine
	combiner  *confidence.Combiner
	threshold float64
	log       zerolog.Logger
}

// New validates its configuration at construction; this is the only point
// where the orchestrator may fail.
func New(extractor Extractor, predictor Predictor, engine *derive.Engine, combiner *confidence.Combiner, acceptanceThreshold float64, log zerolog.Logger) (*Orchestrator, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if predictor == nil {
		return nil, fmt.Errorf("predictor is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("derivation engine is required")
	}
	if combiner == nil {
		return nil, fmt.Errorf("confidence combiner is required")
	}
	if acceptanceThreshold < 0 || acceptanceThreshold > 1 {
		return nil, fmt.Errorf("acceptance threshold out of range [0,1]: %v", acceptanceThreshold)
	}
	return &Orchestrator{
		extractor: extractor,
		predictor: predictor,
		engine:    engine,
		combiner:  combiner,
		threshold: acceptanceThreshold,
		log:       log,
	}, nil
}

// NewDefault builds an orchestrator on the default taxonomy with the process
// logger configured through logging.Setup ("text" or "json"). Embedders that
// need custom tables, thresholds, or their own logger use New.
func NewDefault(extractor Extractor, predictor Predictor, logFormat string) (*Orchestrator, error) {
	log := logging.Setup(logFormat)
	tax := taxonomy.Default()
	engine, err := derive.New(tax, log)
	if err != nil {
		return nil, fmt.Errorf("derivation engine: %w", err)
	}
	combiner, err := confidence.NewCombiner(tax.ReviewOverrides)
	if err != nil {
		return nil, fmt.Errorf("confidence combiner: %w", err)
	}
	return New(extractor, predictor, engine, combiner, DefaultAcceptanceThreshold, log)
}

// Process runs pathway A then pathway B sequentially, timing each
// independently, and fuses their outputs.
func (o *Orchestrator) Process(ctx context.Context, noteText string) *model.ParallelPathwayResult {
	start := time.Now()
	runID := uuid.New()

	a := o.runPathwayA(ctx, noteText)
	b := o.runPathwayB(ctx, noteText)

	return o.assemble(runID, a, b, start)
}

// ProcessAsync is contractually identical to Process but executes the two
// pathways concurrently, joining on both completions. For the same inputs it
// produces the same codes, confidences, ordering, and flags as Process.
func (o *Orchestrator) ProcessAsync(ctx context.Context, noteText string) *model.ParallelPathwayResult {
	start := time.Now()
	runID := uuid.New()

	aCh := make(chan model.PathwayOutcome, 1)
	bCh := make(chan model.PathwayOutcome, 1)
	go func() { aCh <- o.runPathwayA(ctx, noteText) }()
	go func() { bCh <- o.runPathwayB(ctx, noteText) }()
	a := <-aCh
	b := <-bCh

	return o.assemble(runID, a, b, start)
}

// runPathwayA executes extraction followed by deterministic derivation. Any
// error or panic is recorded in the outcome; the code set degrades to empty.
func (o *Orchestrator) runPathwayA(ctx context.Context, noteText string) (out model.PathwayOutcome) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out = model.PathwayOutcome{Err: fmt.Sprintf("pathway A panic: %v", p)}
		}
		out.Duration = time.Since(start)
	}()

	actions, err := o.extractor.Extract(ctx, noteText)
	if err != nil {
		o.log.Warn().Err(err).Msg("pathway A extraction failed")
		return model.PathwayOutcome{Err: fmt.Sprintf("extraction: %s", err)}
	}
	res := o.engine.DeriveCodes(actions, true)
	return model.PathwayOutcome{Codes: res.Codes}
}

// runPathwayB invokes the external predictor under the same containment.
func (o *Orchestrator) runPathwayB(ctx context.Context, noteText string) (out model.PathwayOutcome) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out = model.PathwayOutcome{Err: fmt.Sprintf("pathway B panic: %v", p)}
		}
		out.Duration = time.Since(start)
	}()

	probs, err := o.predictor.PredictProba(ctx, noteText)
	if err != nil {
		o.log.Warn().Err(err).Msg("pathway B prediction failed")
		return model.PathwayOutcome{Err: fmt.Sprintf("prediction: %s", err)}
	}
	return model.PathwayOutcome{Probs: probs}
}

// assemble fuses the two outcomes through the confidence combiner and filters
// to the acceptance threshold. Per-code entity confidence comes from the
// derived code's own confidence, so documentation gaps surfaced by the rules
// engine carry through to the fused score.
func (o *Orchestrator) assemble(runID uuid.UUID, a, b model.PathwayOutcome, start time.Time) *model.ParallelPathwayResult {
	pathACodes := make([]string, len(a.Codes))
	entityConfs := make(map[string]float64, len(a.Codes))
	for i, c := range a.Codes {
		pathACodes[i] = c.Code
		entityConfs[model.BareCode(c.Code)] = c.Confidence
	}

	probs := b.Probs
	if probs == nil {
		probs = map[string]float64{}
	}

	combined, notes := o.combiner.CombineAll(pathACodes, probs, entityConfs)

	finalCodes := []string{}
	needsReview := false
	for _, cc := range combined {
		if cc.Confidence >= o.threshold {
			finalCodes = append(finalCodes, cc.Code)
		}
		if cc.NeedsReview {
			needsReview = true
		}
	}

	res := &model.ParallelPathwayResult{
		RunID:         runID,
		PathwayA:      a,
		PathwayB:      b,
		Combined:      combined,
		CombineNotes:  notes,
		FinalCodes:    finalCodes,
		NeedsReview:   needsReview,
		DurationTotal: time.Since(start),
	}

	o.log.Info().
		Str("run_id", runID.String()).
		Int("pathway_a_codes", len(a.Codes)).
		Int("pathway_b_codes", len(probs)).
		Int("final_codes", len(finalCodes)).
		Bool("needs_review", needsReview).
		Bool("pathway_a_failed", a.Failed()).
		Bool("pathway_b_failed", b.Failed()).
		Msg("dual-pathway run complete")

	return res
}
