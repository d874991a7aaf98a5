package provider

import "net/http"

// Kind tags the outcome of one request attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindClientError
	KindServerError
	KindTimeout
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Retryable reports whether the client's own retry policy applies.
func (k Kind) Retryable() bool { return k == KindServerError || k == KindTimeout }

// Outcome is the classified result of one attempt. Payload is empty for
// 204 and tolerated 404 responses.
type Outcome struct {
	Kind    Kind
	Status  int
	Payload []byte
}

func classify(status int, body []byte, allowMissing bool) Outcome {
	switch {
	case status == http.StatusOK:
		return Outcome{Kind: KindSuccess, Status: status, Payload: body}
	case status == http.StatusNoContent, status == http.StatusNotFound && allowMissing:
		return Outcome{Kind: KindSuccess, Status: status}
	case status == http.StatusTooManyRequests:
		return Outcome{Kind: KindRateLimited, Status: status, Payload: body}
	case status >= 500:
		return Outcome{Kind: KindServerError, Status: status, Payload: body}
	case status >= 400:
		return Outcome{Kind: KindClientError, Status: status, Payload: body}
	default:
		// other 2xx/3xx are not part of the provider contract
		return Outcome{Kind: KindClientError, Status: status, Payload: body}
	}
}

func (o Outcome) err(endpoint, path string) *Error {
	return &Error{
		Kind:     o.Kind,
		Endpoint: endpoint,
		Path:     path,
		Status:   o.Status,
		Body:     abbreviate(o.Payload, 200),
	}
}
