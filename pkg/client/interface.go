package client

import (
	"context"

	"github.com/menta2k/pool-coach/pkg/types"
)

// Request is one multimodal generation call
type Request struct {
	Image             types.EncodedImage
	Prompt            string
	SystemInstruction string
	Schema            *types.Schema
}

// Submitter sends a request to a hosted vision model and returns the raw
// text of its reply. Implementations must not retry.
type Submitter interface {
	Name() string
	Submit(ctx context.Context, req Request) (string, error)
}

// StatusError is implemented by backend errors that know the upstream HTTP status
type StatusError interface {
	error
	HTTPStatus() int
}
