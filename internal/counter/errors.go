package counter

import "errors"

// Reason identifies why a request failed validation.
type Reason string

// Validation reasons, checked in this order.
const (
	ReasonMissingField       Reason = "missing_field"
	ReasonInvalidURLFormat   Reason = "invalid_url_format"
	ReasonUnsupportedScheme  Reason = "unsupported_scheme"
	ReasonInvalidElementName Reason = "invalid_element_name"
	ReasonURLTooLong         Reason = "url_too_long"
	ReasonInvalidDomain      Reason = "invalid_domain"
)

// User-facing messages. Nothing else is ever shown to a caller.
const (
	MessageFetchFailed = "Unable to fetch URL. It may be blocked or inaccessible."
	MessageServerError = "Server error occurred"
)

var reasonMessages = map[Reason]string{
	ReasonMissingField:       "Both URL and element are required",
	ReasonInvalidURLFormat:   "Invalid URL format",
	ReasonUnsupportedScheme:  "Only HTTP and HTTPS URLs are allowed",
	ReasonInvalidElementName: "Invalid HTML element name",
	ReasonURLTooLong:         "URL too long",
	ReasonInvalidDomain:      "Invalid domain in URL",
}

var (
	// ErrFetchFailed wraps every fetch failure: transport errors, non-200
	// statuses, empty bodies, redirect and certificate failures.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrStore wraps every persistence failure.
	ErrStore = errors.New("store failure")
)

// ValidationError reports the first validation rule an input broke.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "invalid input: " + string(e.Reason)
}

// Message returns the user-facing text for the reason.
func (e *ValidationError) Message() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return MessageServerError
}

func invalid(reason Reason) error {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// UserMessage maps err to its short, pre-defined user-facing message.
func UserMessage(err error) string {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return vErr.Message()
	case errors.Is(err, ErrFetchFailed):
		return MessageFetchFailed
	default:
		return MessageServerError
	}
}
