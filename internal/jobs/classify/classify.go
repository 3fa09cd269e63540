// Package classify maps heterogeneous upstream failures to a canonical
// {code, message, retryable} triple. Matching is a fixed priority
// chain; the first match wins. Retryability is advisory metadata: the
// orchestrator only uses it for logging and refund bookkeeping.
package classify

import (
	"errors"
	"regexp"
	"strings"
)

// Code is a canonical failure category.
type Code string

const (
	CodeTimeout             Code = "TIMEOUT"
	CodeContentPolicy       Code = "CONTENT_POLICY"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeAuthFailed          Code = "AUTH_FAILED"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeStorageUpload       Code = "STORAGE_UPLOAD_FAILED"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeGenericFailure      Code = "GENERIC_FAILURE"
	CodeUnknown             Code = "UNKNOWN"
)

// Classified is the classifier's canonical output.
type Classified struct {
	Code      Code
	Message   string
	Retryable bool
}

// Error carries an already-classified failure through error returns, so
// a stage can pre-classify and the result passes through unchanged.
type Error struct {
	Classified
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps cause with a canonical code and its static message.
func NewError(code Code, cause error) *Error {
	return &Error{Classified: fromCode(code, ""), Cause: cause}
}

// Failure is the classifier's boundary shape: the few optional fields
// upstream failures actually carry, instead of an open-ended object.
type Failure struct {
	Code       string    // structured provider error code
	HTTPStatus int       // top-level HTTP status
	Response   *Response // nested response carrying a status
	Name       string    // error type name
	Message    string    // free-text message
	Err        error     // wrapped Go error, if any
}

// Response mirrors a nested provider response object.
type Response struct {
	Status int
}

// Static user-facing messages per canonical code. GENERIC_FAILURE has
// no fixed message: it passes the original text through.
var messages = map[Code]string{
	CodeTimeout:             "The generation timed out. Please try again.",
	CodeContentPolicy:       "The request was rejected by the content policy.",
	CodeRateLimited:         "The service is receiving too many requests. Please try again shortly.",
	CodeAuthFailed:          "The generation service rejected our credentials.",
	CodeInvalidInput:        "The request parameters were invalid.",
	CodeStorageUpload:       "Storing the generated artifact failed.",
	CodeProviderUnavailable: "The generation service is temporarily unavailable.",
	CodeUnknown:             "An unknown error occurred.",
}

// Fixed retryability per canonical code.
var retryable = map[Code]bool{
	CodeTimeout:             true,
	CodeContentPolicy:       false,
	CodeRateLimited:         true,
	CodeAuthFailed:          false,
	CodeInvalidInput:        false,
	CodeStorageUpload:       true,
	CodeProviderUnavailable: true,
	CodeGenericFailure:      false,
	CodeUnknown:             false,
}

// Exact provider code to canonical code.
var codeTable = map[string]Code{
	"TIMEOUT":                  CodeTimeout,
	"DEADLINE_EXCEEDED":        CodeTimeout,
	"CONTENT_POLICY_VIOLATION": CodeContentPolicy,
	"SAFETY_BLOCK":             CodeContentPolicy,
	"RATE_LIMIT_EXCEEDED":      CodeRateLimited,
	"QUOTA_EXCEEDED":           CodeRateLimited,
	"UNAUTHORIZED":             CodeAuthFailed,
	"INVALID_API_KEY":          CodeAuthFailed,
	"INVALID_PROMPT":           CodeInvalidInput,
	"INVALID_REQUEST":          CodeInvalidInput,
	"UPLOAD_FAILED":            CodeStorageUpload,
	"SERVICE_UNAVAILABLE":      CodeProviderUnavailable,
}

// Ordered substring fallbacks for decorated codes, e.g. a provider code
// containing "TIMEOUT" still classifies as TIMEOUT.
var codeSubstrings = []struct {
	substr string
	code   Code
}{
	{"TIMEOUT", CodeTimeout},
	{"CONTENT_POLICY", CodeContentPolicy},
	{"RATE_LIMIT", CodeRateLimited},
	{"AUTH", CodeAuthFailed},
	{"INVALID", CodeInvalidInput},
	{"UPLOAD", CodeStorageUpload},
}

// HTTP status to canonical code.
var statusTable = map[int]Code{
	400: CodeInvalidInput,
	401: CodeAuthFailed,
	403: CodeAuthFailed,
	408: CodeTimeout,
	422: CodeInvalidInput,
	429: CodeRateLimited,
	500: CodeProviderUnavailable,
	502: CodeProviderUnavailable,
	503: CodeProviderUnavailable,
	504: CodeTimeout,
}

// Error type-name substrings (lowercased match).
var nameSubstrings = []struct {
	substr string
	code   Code
}{
	{"timeout", CodeTimeout},
	{"abort", CodeTimeout},
	{"unauthorized", CodeAuthFailed},
	{"auth", CodeAuthFailed},
}

// Ordered regex groups over the free-text message; the first matching
// group wins.
var messagePatterns = []struct {
	re   *regexp.Regexp
	code Code
}{
	{regexp.MustCompile(`(?i)(timed?[\s_-]*out|deadline exceeded|context deadline)`), CodeTimeout},
	{regexp.MustCompile(`(?i)(content[\s_-]*polic|safety (system|filter)|moderation|nsfw)`), CodeContentPolicy},
	{regexp.MustCompile(`(?i)(rate[\s_-]*limit|too many requests|quota exceeded)`), CodeRateLimited},
	{regexp.MustCompile(`(?i)(unauthori[sz]ed|forbidden|invalid (api[\s_-]*key|credential)|authentication)`), CodeAuthFailed},
	{regexp.MustCompile(`(?i)(invalid (input|prompt|request|parameter)|unsupported|malformed)`), CodeInvalidInput},
	{regexp.MustCompile(`(?i)(upload|object storage|bucket)`), CodeStorageUpload},
}

func fromCode(code Code, original string) Classified {
	msg, ok := messages[code]
	if !ok {
		// GENERIC_FAILURE preserves the original message verbatim.
		msg = original
		if msg == "" {
			msg = "Generation failed."
		}
	}
	return Classified{Code: code, Message: msg, Retryable: retryable[code]}
}

// Classify maps f to its canonical triple. A nil input classifies as
// UNKNOWN.
func Classify(f *Failure) Classified {
	if f == nil {
		return fromCode(CodeUnknown, "")
	}

	// 1. Already-classified errors pass through unchanged.
	if f.Err != nil {
		var ce *Error
		if errors.As(f.Err, &ce) {
			return ce.Classified
		}
	}

	// 2. Structured provider code, exact then substring containment.
	if f.Code != "" {
		upper := strings.ToUpper(f.Code)
		if code, ok := codeTable[upper]; ok {
			return fromCode(code, f.Message)
		}
		for _, cs := range codeSubstrings {
			if strings.Contains(upper, cs.substr) {
				return fromCode(cs.code, f.Message)
			}
		}
	}

	// 3. HTTP status, direct then nested response.
	if code, ok := statusTable[f.HTTPStatus]; ok {
		return fromCode(code, f.Message)
	}
	if f.Response != nil {
		if code, ok := statusTable[f.Response.Status]; ok {
			return fromCode(code, f.Message)
		}
	}

	// 4. Error type name.
	if f.Name != "" {
		lower := strings.ToLower(f.Name)
		for _, ns := range nameSubstrings {
			if strings.Contains(lower, ns.substr) {
				return fromCode(ns.code, f.Message)
			}
		}
	}

	// 5. Free-text message patterns.
	message := f.Message
	if message == "" && f.Err != nil {
		message = f.Err.Error()
	}
	if message != "" {
		for _, mp := range messagePatterns {
			if mp.re.MatchString(message) {
				return fromCode(mp.code, message)
			}
		}
	}

	// 6. Default: a real failure with no match keeps its message
	// verbatim under GENERIC_FAILURE; non-failures are UNKNOWN.
	if message == "" && f.Code == "" && f.HTTPStatus == 0 && f.Response == nil && f.Name == "" {
		return fromCode(CodeUnknown, "")
	}
	return fromCode(CodeGenericFailure, message)
}

// ClassifyError is a convenience for plain Go errors.
func ClassifyError(err error) Classified {
	if err == nil {
		return fromCode(CodeUnknown, "")
	}
	return Classify(&Failure{Err: err, Message: err.Error()})
}
