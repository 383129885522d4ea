package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam describes one outgoing request.
//
// Body may be nil, an io.Reader or a []byte; the caller sets Content-Type in
// Header when it is not application/octet-stream. Response may be nil or a
// *[]byte that receives the raw body.
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
