// Package request builds *http.Request values from an environment and an
// endpoint description. Building fails fast, before any network activity,
// when connectivity is down or the URL cannot be formed.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"

	"github.com/adamwoolhether/httpstream/client/neterror"
	"github.com/adamwoolhether/httpstream/client/reachability"
)

// APIKeyHeader carries Environment.APIKey.
const APIKeyHeader = "X-API-Key"

// Method is an HTTP request method.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
)

// Environment is the deployment an endpoint is resolved against.
type Environment struct {
	BaseURL string `json:"baseURL" validate:"required,url"`
	APIKey  string `json:"apiKey"`
}

// Endpoint describes one request relative to an Environment.
type Endpoint struct {
	Environment Environment `json:"environment"`
	Path        string      `json:"path" validate:"max=2048"`
	Method      Method      `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Query       url.Values  `json:"-"`
	Headers     Headers     `json:"-"`
	// Body is sent as pretty-printed JSON.
	Body map[string]any `json:"-"`
	// Multipart is sent as multipart/form-data. It excludes Body.
	Multipart *Multipart `json:"-"`
}

// Multipart is a form-data body.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

// File is one file part of a multipart body.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// URL resolves the endpoint against its environment.
func (e Endpoint) URL() (*url.URL, error) {
	base, err := url.Parse(e.Environment.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q needs a scheme and host", e.Environment.BaseURL)
	}

	u := base
	if e.Path != "" {
		u = base.JoinPath(e.Path)
	}

	if len(e.Query) > 0 {
		q := u.Query()
		for k, vs := range e.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u, nil
}

// Builder turns endpoints into requests.
type Builder struct {
	checker reachability.Checker
}

// NewBuilder returns a Builder consulting checker before every build. A nil
// checker always reports reachable.
func NewBuilder(checker reachability.Checker) *Builder {
	if checker == nil {
		checker = reachability.Static(true)
	}

	return &Builder{checker: checker}
}

// Build returns the request for ep. Connectivity is checked first, then the
// URL; those failures are *neterror.Error of kind NoInternet or BadURL.
func (b *Builder) Build(ctx context.Context, ep Endpoint) (*http.Request, error) {
	if !b.checker.IsReachable() {
		return nil, neterror.New(neterror.KindNoInternet, "")
	}

	if err := Validate(ep); err != nil {
		return nil, badURL(err)
	}

	u, err := ep.URL()
	if err != nil {
		return nil, badURL(err)
	}

	body, contentType, err := ep.body()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, string(ep.Method), u.String(), body)
	if err != nil {
		return nil, badURL(err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range ep.Headers {
		if k == ContentType && ep.Multipart != nil {
			continue
		}
		req.Header.Set(k.String(), v.String())
	}
	if ep.Environment.APIKey != "" && req.Header.Get(APIKeyHeader) == "" {
		req.Header.Set(APIKeyHeader, ep.Environment.APIKey)
	}

	return req, nil
}

// body encodes the JSON or multipart body, if any.
func (e Endpoint) body() (io.Reader, string, error) {
	switch {
	case e.Body != nil && e.Multipart != nil:
		return nil, "", errors.New("endpoint cannot carry both a JSON and a multipart body")
	case e.Body != nil:
		b, err := json.MarshalIndent(e.Body, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encoding request payload: %w", err)
		}
		return bytes.NewReader(b), JSON.String(), nil
	case e.Multipart != nil:
		return e.Multipart.encode()
	default:
		return nil, "", nil
	}
}

func (m *Multipart) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if err := w.WriteField(k, m.Fields[k]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}

	for _, f := range m.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("writing part %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func badURL(err error) *neterror.Error {
	return &neterror.Error{Kind: neterror.KindBadURL, Reason: err.Error(), Err: err}
}
