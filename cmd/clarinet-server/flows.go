package main

import (
	"context"
	"log"

	"github.com/radionest/clarinet/internal/flow"
	"github.com/radionest/clarinet/internal/store"
)

// registerActionHandlers wires the call_function targets a deployment's
// flow definitions may reference. Each handler here stands in for a
// side effect owned by an external worker (anonymization, reviewer
// notification)
// that this process only needs to kick off and log, not perform itself.
func registerActionHandlers(executor *flow.ActionExecutor) {
	executor.RegisterHandler("anonymize_dicom", func(ctx context.Context, trigger *store.Record, flowCtx flow.Context, args []any, kwargs map[string]any) error {
		log.Printf("[flow] anonymize_dicom: record %d (patient %s)", trigger.ID, trigger.PatientID)
		return nil
	})
	executor.RegisterHandler("notify_reviewer", func(ctx context.Context, trigger *store.Record, flowCtx flow.Context, args []any, kwargs map[string]any) error {
		log.Printf("[flow] notify_reviewer: record %d needs review", trigger.ID)
		return nil
	})
}

// registerDefaultFlows registers the intake flow shipped as this
// deployment's baseline: once a quality_check record finishes, it
// kicks off calcification segmentation and flags the result for
// review whenever the AI's call disagrees with the reviewing doctor's.
// Mirrors the teaching example's quality_check -> segment_calcifications
// -> compare_ai_with_doctor pipeline, translated into the DSL.
func registerDefaultFlows(engine *flow.Engine) error {
	finished := store.StatusFinished

	qualityCheckDone := &flow.Flow{
		Name:          "quality-check-to-segmentation",
		RecordType:    "quality_check",
		StatusTrigger: &finished,
		Unconditional: []flow.Action{
			{Kind: flow.ActionCreateRecord, RecordTypeName: "segment_calcifications"},
		},
	}
	if err := engine.RegisterFlow(qualityCheckDone); err != nil {
		return err
	}

	segmentationDone := &flow.Flow{
		Name:          "segmentation-review-on-disagreement",
		RecordType:    "segment_calcifications",
		StatusTrigger: &finished,
		Branches: []flow.Branch{
			{
				Condition: flow.FieldRef("segment_calcifications", "ai_result").Ne(
					flow.FieldRef("segment_calcifications", "doctor_result"),
				),
				Actions: []flow.Action{
					{Kind: flow.ActionCreateRecord, RecordTypeName: "check_calcification_differences"},
					{Kind: flow.ActionCallFunction, FuncName: "notify_reviewer"},
				},
			},
		},
	}
	return engine.RegisterFlow(segmentationDone)
}
