package constants

// RunState is the lifecycle state of one pipeline run.
type RunState string

const (
	RunReceived   RunState = "RECEIVED"
	RunExtracting RunState = "EXTRACTING"
	RunComposing  RunState = "COMPOSING"
	RunInferring  RunState = "INFERRING"
	RunValidating RunState = "VALIDATING"
	RunCompleted  RunState = "COMPLETED" // terminal
	RunFailed     RunState = "FAILED"    // terminal
)

// Terminal reports whether no further transition is allowed from s.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Stage identifies where a run failed. Stored verbatim in error records.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageInference  Stage = "inference"
	StageValidation Stage = "validation"
	StageTransport  Stage = "transport"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageExtraction, StageInference, StageValidation, StageTransport:
		return true
	}
	return false
}

// Store backends.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Inference providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Extraction methods for PDF documents.
const (
	ExtractAuto      = "auto"
	ExtractNative    = "native"
	ExtractPdftotext = "pdftotext"
	ExtractOCR       = "ocr"
)
