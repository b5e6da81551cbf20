package constants

// JobStage is one named step in the job-level state machine.
type JobStage string

// Stable values (store these exact strings in DB and logs).
const (
	StageReceived     JobStage = "RECEIVED"
	StageStaging      JobStage = "STAGING"
	StagePreprocess   JobStage = "PREPROCESS"
	StageOCRLayout    JobStage = "OCR_LAYOUT"
	StageOCRRecognize JobStage = "OCR_RECOGNIZE"
	StageSemanticParse JobStage = "SEMANTIC_PARSE"
	StagePostprocess  JobStage = "POSTPROCESS"
	StageValidate     JobStage = "VALIDATE"
	StageStore        JobStage = "STORE"
	StageCompleted    JobStage = "COMPLETED"
	StageFailed       JobStage = "FAILED"
)

// StageOrder is the happy path through the machine, in execution order.
var StageOrder = []JobStage{
	StageReceived,
	StageStaging,
	StagePreprocess,
	StageOCRLayout,
	StageOCRRecognize,
	StageSemanticParse,
	StagePostprocess,
	StageValidate,
	StageStore,
	StageCompleted,
}

// StageAdjacency maps each stage to the stages it may legally advance to.
// FAILED is reachable from every non-terminal stage and is handled by the
// state machine directly, so it is not listed here. COMPLETED and FAILED
// are terminal and have no outgoing edges.
var StageAdjacency = map[JobStage][]JobStage{
	StageReceived:      {StageStaging},
	StageStaging:       {StagePreprocess},
	StagePreprocess:    {StageOCRLayout},
	StageOCRLayout:     {StageOCRRecognize},
	StageOCRRecognize:  {StageSemanticParse},
	StageSemanticParse: {StagePostprocess},
	StagePostprocess:   {StageValidate},
	StageValidate:      {StageStore},
	StageStore:         {StageCompleted},
	StageCompleted:     {},
	StageFailed:        {},
}

// StageProgress maps each stage to the overall job progress percentage
// reported when the stage opens. Approximate indicator, not an invariant.
var StageProgress = map[JobStage]int{
	StageReceived:      0,
	StageStaging:       5,
	StagePreprocess:    15,
	StageOCRLayout:     30,
	StageOCRRecognize:  45,
	StageSemanticParse: 60,
	StagePostprocess:   75,
	StageValidate:      85,
	StageStore:         95,
	StageCompleted:     100,
	StageFailed:        100,
}

// StageNames lists the stable stage strings for schema validators.
func StageNames() []string {
	names := make([]string, 0, len(StageOrder)+1)
	for _, s := range StageOrder {
		names = append(names, string(s))
	}
	return append(names, string(StageFailed))
}

// IsTerminal reports whether a stage has no outgoing transitions.
func (s JobStage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether from -> to is a legal edge. FAILED is
// always reachable from a non-terminal stage.
func CanTransition(from, to JobStage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, next := range StageAdjacency[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PipelineStage tracks a single document run through the ETL pipeline.
type PipelineStage string

const (
	PipelineIngested    PipelineStage = "INGESTED"
	PipelineClassified  PipelineStage = "CLASSIFIED"
	PipelineExtracted   PipelineStage = "EXTRACTED"
	PipelineTransformed PipelineStage = "TRANSFORMED"
	PipelineValidated   PipelineStage = "VALIDATED"
	PipelineLoaded      PipelineStage = "LOADED"
	PipelineFailed      PipelineStage = "FAILED"
)
