package openmeteo

import "fmt"

// UpstreamError reports a request that failed after all retries. The cycle
// treats it as a per-city failure, never a cycle abort.
type UpstreamError struct {
	City     string
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream unavailable for %s (%s): %v", e.City, e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MalformedError reports a response missing a requested field or carrying
// value arrays whose length does not match the time array.
type MalformedError struct {
	City   string
	Detail string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response for %s: %s", e.City, e.Detail)
}
