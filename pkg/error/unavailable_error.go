package error

import "net/http"

// UnavailableError reports a backend that failed transiently; the client may
// retry.
type UnavailableError string

func (err UnavailableError) Error() string {
	return string(err)
}

func (err UnavailableError) ErrCode() string {
	return "SERVICE_UNAVAILABLE"
}

func (err UnavailableError) StatusCode() int {
	return http.StatusServiceUnavailable
}
