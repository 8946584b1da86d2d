package backend

import "fmt"

// Class labels how an attempt or an outcome ended, for logs and metrics
type Class string

const (
	ClassAnswer           Class = "answer"
	ClassUnexpectedFormat Class = "unexpected_format"
	ClassHTTPError        Class = "http_error"
	ClassTransient        Class = "transient"
	ClassRetriesExhausted Class = "retries_exhausted"
	ClassCancelled        Class = "cancelled"
	ClassRequestError     Class = "request_error"
)

// Outcome is the result of querying one backend. OK outcomes carry answer
// text, the rest carry a human-readable failure description.
type Outcome struct {
	Key   string
	OK    bool
	Class Class
	Text  string
}

// Display is the string stored in the aggregated response
func (o Outcome) Display() string { return o.Text }

func failure(key string, class Class, description string) Outcome {
	return Outcome{Key: key, Class: class, Text: description}
}

func cancelled(key string, err error) Outcome {
	return failure(key, ClassCancelled, fmt.Sprintf("request cancelled for backend %s: %v", key, err))
}

// TransientError is a connection failure or timeout during one attempt
type TransientError struct {
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// HTTPError is a non-200 backend response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("error %d: %s", e.StatusCode, e.Body)
}

// ProtocolError is a 200 response without choices[0].message.content
type ProtocolError struct {
	Body string
}

func (e *ProtocolError) Error() string {
	return "unexpected response format: " + e.Body
}
