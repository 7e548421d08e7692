// Package httpstream exposes the client builder.
package httpstream

import (
	"github.com/adamwoolhether/httpstream/client"
)

// NewClient instantiates a new *client.Client with the provided options.
// If not specified, a fresh HTTP/2 capable transport is used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
