package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"lorad/internal/composite"
	"lorad/pkg/types"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 4096

// maxStreamLine bounds a single NDJSON record of a generation stream.
const maxStreamLine = 4 << 20

// Options configures the HTTP transport.
type Options struct {
	BaseURL string
	// RequestTimeout bounds non-streaming calls; zero disables it. Streaming
	// generation is only bounded by the caller's context.
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// HTTPClient talks to the inference service's REST API.
type HTTPClient struct {
	rc         *resty.Client
	reqTimeout time.Duration
	log        zerolog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a client for the service at opts.BaseURL.
func NewHTTPClient(opts Options) *HTTPClient {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// No client-wide timeout: it would cut long generation streams. Deadlines
	// travel on the request context instead.
	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTransport(tr).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPClient{rc: rc, reqTimeout: opts.RequestTimeout, log: opts.Logger}
}

type tagsResponse struct {
	Models *[]tagEntry `json:"models"`
}

type tagEntry struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modified_at"`
}

type createRequest struct {
	Model     string `json:"model"`
	Name      string `json:"name"`
	Modelfile string `json:"modelfile"`
	Stream    bool   `json:"stream"`
}

type deleteRequest struct {
	Model string `json:"model"`
	Name  string `json:"name"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model     string           `json:"model"`
	Prompt    string           `json:"prompt"`
	Stream    bool             `json:"stream"`
	KeepAlive *int             `json:"keep_alive,omitempty"`
	Options   *generateOptions `json:"options,omitempty"`
}

// generateRecord is one streamed or single-shot /api/generate answer.
type generateRecord struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ListModels calls GET /api/tags.
func (c *HTTPClient) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := c.rc.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return nil, transportError(ctx, "list", err)
	}
	if resp.IsError() {
		return nil, upstreamError("list", resp.StatusCode(), resp.Body())
	}
	var tags tagsResponse
	if err := json.Unmarshal(resp.Body(), &tags); err != nil {
		return nil, &UpstreamError{Op: "list", StatusCode: resp.StatusCode(), Body: "malformed model list: " + err.Error()}
	}
	if tags.Models == nil {
		return nil, &UpstreamError{Op: "list", StatusCode: resp.StatusCode(), Body: `model list without "models" field`}
	}
	out := make([]types.ModelInfo, 0, len(*tags.Models))
	for i, m := range *tags.Models {
		if m.Name == "" {
			return nil, &UpstreamError{Op: "list", StatusCode: resp.StatusCode(), Body: fmt.Sprintf("model entry %d without name", i)}
		}
		out = append(out, types.ModelInfo{
			Name:       m.Name,
			Model:      m.Model,
			Size:       m.Size,
			Digest:     m.Digest,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return out, nil
}

// CreateComposite calls POST /api/create with a rendered Modelfile.
func (c *HTTPClient) CreateComposite(ctx context.Context, d composite.Descriptor) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	body := createRequest{Model: d.Name, Name: d.Name, Modelfile: d.Modelfile(), Stream: false}
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post("/api/create")
	if err != nil {
		return transportError(ctx, "create", err)
	}
	if resp.IsError() {
		return upstreamError("create", resp.StatusCode(), resp.Body())
	}
	if msg := embeddedError(resp.Body()); msg != "" {
		return &UpstreamError{Op: "create", StatusCode: resp.StatusCode(), Body: msg}
	}
	c.log.Debug().Str("model", d.Name).Str("base", d.BaseModel).Msg("composite created")
	return nil
}

// DeleteModel calls DELETE /api/delete.
func (c *HTTPClient) DeleteModel(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := c.rc.R().SetContext(ctx).SetBody(deleteRequest{Model: name, Name: name}).Delete("/api/delete")
	if err != nil {
		return transportError(ctx, "delete", err)
	}
	if resp.IsError() {
		return upstreamError("delete", resp.StatusCode(), resp.Body())
	}
	return nil
}

// ConfirmLoaded issues a one-token, non-streaming generate with an empty prompt.
func (c *HTTPClient) ConfirmLoaded(ctx context.Context, name string) error {
	_, err := c.generateOnce(ctx, "confirm", generateRequest{
		Model:   name,
		Options: &generateOptions{NumPredict: 1},
	})
	return err
}

// Unload issues a zero keep-alive generate so the upstream evicts the model.
func (c *HTTPClient) Unload(ctx context.Context, name string) error {
	zero := 0
	_, err := c.generateOnce(ctx, "unload", generateRequest{Model: name, KeepAlive: &zero})
	return err
}

// GenerateOnce runs a non-streaming generate and returns the response text.
func (c *HTTPClient) GenerateOnce(ctx context.Context, req GenerateRequest) (string, error) {
	rec, err := c.generateOnce(ctx, "generate", generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Options: numPredict(req.MaxTokens),
	})
	if err != nil {
		return "", err
	}
	if rec.Response == nil {
		return "", &UpstreamError{Op: "generate", StatusCode: http.StatusOK, Body: `generate answer without "response" field`}
	}
	return *rec.Response, nil
}

func (c *HTTPClient) generateOnce(ctx context.Context, op string, body generateRequest) (generateRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	body.Stream = false
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post("/api/generate")
	if err != nil {
		return generateRecord{}, transportError(ctx, op, err)
	}
	if resp.IsError() {
		return generateRecord{}, upstreamError(op, resp.StatusCode(), resp.Body())
	}
	var rec generateRecord
	if err := json.Unmarshal(resp.Body(), &rec); err != nil {
		return generateRecord{}, &UpstreamError{Op: op, StatusCode: resp.StatusCode(), Body: "malformed generate answer: " + err.Error()}
	}
	if rec.Error != "" {
		return generateRecord{}, &UpstreamError{Op: op, StatusCode: resp.StatusCode(), Body: rec.Error}
	}
	return rec, nil
}

// Generate streams POST /api/generate NDJSON records to fn.
func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest, fn DeltaFunc) error {
	body := generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  true,
		Options: numPredict(req.MaxTokens),
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(body).
		SetHeader("Accept", "application/x-ndjson").
		SetDoNotParseResponse(true).
		Post("/api/generate")
	if err != nil {
		return transportError(ctx, "generate", err)
	}
	raw := resp.RawBody()
	defer raw.Close()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		b, _ := io.ReadAll(io.LimitReader(raw, maxErrorBody))
		return upstreamError("generate", resp.StatusCode(), b)
	}
	return relayStream(ctx, raw, resp.StatusCode(), fn)
}

// relayStream decodes NDJSON generate records from r and hands each to fn.
func relayStream(ctx context.Context, r io.Reader, status int, fn DeltaFunc) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	delivered := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec generateRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return &StreamError{Delivered: delivered, Err: &UpstreamError{Op: "generate", StatusCode: status, Body: "malformed stream record: " + err.Error()}}
		}
		if rec.Error != "" {
			return &StreamError{Delivered: delivered, Err: &UpstreamError{Op: "generate", StatusCode: status, Body: rec.Error}}
		}
		if rec.Response == nil && !rec.Done {
			return &StreamError{Delivered: delivered, Err: &UpstreamError{Op: "generate", StatusCode: status, Body: `stream record without "response" field`}}
		}
		d := types.TextDelta{Done: rec.Done}
		if rec.Response != nil {
			d.Response = *rec.Response
		}
		if err := fn(d); err != nil {
			return err
		}
		delivered++
		if rec.Done {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StreamError{Delivered: delivered, Err: err}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &StreamError{Delivered: delivered, Err: io.ErrUnexpectedEOF}
}

func (c *HTTPClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.reqTimeout > 0 {
		return context.WithTimeout(ctx, c.reqTimeout)
	}
	return ctx, func() {}
}

func numPredict(maxTokens int) *generateOptions {
	if maxTokens <= 0 {
		return nil
	}
	return &generateOptions{NumPredict: maxTokens}
}

// transportError maps a failed round trip. Caller cancellation is returned as
// the context error so it is not mistaken for an unreachable upstream.
func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return &UnreachableError{Op: op, Err: err}
}

func upstreamError(op string, status int, body []byte) error {
	msg := embeddedError(body)
	if msg == "" {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &UpstreamError{Op: op, StatusCode: status, Body: msg}
}

// embeddedError extracts {"error": "..."} from a JSON body, if present.
func embeddedError(body []byte) string {
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return ""
	}
	return eb.Error
}
