package model

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// BuildInfo is filled from -ldflags at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeMissingFile     = "missing_file"
	CodeMissingColor    = "missing_color"
	CodeInvalidColor    = "invalid_color"
	CodeInvalidFormat   = "invalid_format"
	CodeInvalidParam    = "invalid_param"
	CodeInvalidImage    = "invalid_image"
	CodeUnsupportedType = "unsupported_type"
	CodeTooLarge        = "file_too_large"
	CodeBusy            = "model_busy"
	CodeInternal        = "processing_error"
)
