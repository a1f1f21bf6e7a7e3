// Package serverless serves API Gateway style proxy events (AWS Lambda,
// Netlify functions) through a plain http.Handler.
package serverless

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	log "github.com/sirupsen/logrus"
)

type Adapter struct {
	proxy    *httpadapter.HandlerAdapter
	basePath string
}

type Option func(*Adapter)

// WithBasePath strips the given prefix (e.g. "/.netlify/functions/api")
// from every event path before routing.
func WithBasePath(basePath string) Option {
	return func(a *Adapter) {
		a.basePath = strings.TrimRight(basePath, "/")
	}
}

func NewAdapter(handler http.Handler, opts ...Option) *Adapter {
	a := &Adapter{proxy: httpadapter.New(handler)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle serves one proxy event through the wrapped handler. Events that
// cannot be turned into a request get a 400 answer instead of an
// invocation error.
func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	event.Path = a.stripBasePath(event.Path)

	resp, err := a.proxy.ProxyWithContext(ctx, event)
	if err != nil {
		log.Errorf("serverless: proxy event [%s %s]: %s", event.HTTPMethod, event.Path, err)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"detail":"invalid request event"}`,
		}, nil
	}

	return resp, nil
}

// stripBasePath only cuts the prefix on a path segment boundary.
func (a *Adapter) stripBasePath(path string) string {
	if a.basePath != "" {
		if rest, ok := strings.CutPrefix(path, a.basePath); ok && (rest == "" || rest[0] == '/') {
			path = rest
		}
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return path
}
