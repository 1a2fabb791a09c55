// Package apiclient talks to the approval configuration web API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/huangang/larkticket/pkg/logger"
)

// APIPrefix is prepended to relative request paths.
const APIPrefix = "/api/v1/web"

var absoluteURL = regexp.MustCompile(`^https?://`)

// ContentType selects how a non-GET request body is encoded.
type ContentType int

const (
	ContentTypeJSON ContentType = iota
	ContentTypeForm
)

// Request describes one call. The zero value is a JSON POST without a body.
type Request struct {
	Method      string
	ContentType ContentType
	Header      http.Header
	// Data is the query for GET and the body otherwise.
	Data interface{}
}

// Doer is the request primitive the transport is built on; *http.Client
// satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportError reports a network failure or a non-2xx response.
type TransportError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apiclient: transport: %v", e.Err)
	}
	return fmt.Sprintf("apiclient: unexpected status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport resolves paths against the server address and performs requests.
type Transport struct {
	baseURL string
	doer    Doer
	header  http.Header
}

func NewTransport(baseURL string, doer Doer) *Transport {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		header:  http.Header{},
	}
}

// SetHeader adds a header sent with every request.
func (t *Transport) SetHeader(key, value string) {
	t.header.Set(key, value)
}

// ResolveURL returns absolute URLs unchanged and prefixes relative paths with
// the server address and APIPrefix.
func (t *Transport) ResolveURL(path string) string {
	if absoluteURL.MatchString(path) {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.baseURL + APIPrefix + path
}

// Do performs the request and returns the body of a 2xx response.
func (t *Transport) Do(ctx context.Context, path string, r Request) ([]byte, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodPost
	}
	target := t.ResolveURL(path)

	var (
		body        io.Reader
		contentType string
	)
	if method == http.MethodGet {
		query, err := encodeQuery(r.Data)
		if err != nil {
			return nil, err
		}
		if query != "" {
			target += "?" + query
		}
	} else if r.Data != nil {
		var err error
		body, contentType, err = encodeBody(r.ContentType, r.Data)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	for k, vs := range t.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.doer.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Msg("[apiclient] request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// flatten turns data into string values keyed by JSON field name.
func flatten(data interface{}) (map[string]string, error) {
	if data == nil {
		return nil, nil
	}
	switch v := data.(type) {
	case map[string]string:
		return v, nil
	case url.Values:
		out := make(map[string]string, len(v))
		for k := range v {
			out[k] = v.Get(k)
		}
		return out, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("apiclient: data must encode as a JSON object: %w", err)
	}

	out := make(map[string]string, len(fields))
	for k, val := range fields {
		switch val := val.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case map[string]interface{}, []interface{}:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func encodeQuery(data interface{}) (string, error) {
	fields, err := flatten(data)
	if err != nil {
		return "", err
	}
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	return values.Encode(), nil
}

func encodeBody(ct ContentType, data interface{}) (io.Reader, string, error) {
	if ct != ContentTypeForm {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	}

	fields, err := flatten(data)
	if err != nil {
		return nil, "", err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
