package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voice-agent/internal/domain"
)

const (
	audioField  = "audio_file"
	errorHeader = "X-Error"
	maxReply    = 1 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return operation + " " + r.URL.Path
			}),
		),
	})
}

func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Send uploads one turn's audio and interprets the answer: an X-Error flag
// wins over any status code, then non-2xx statuses, then the JSON body must
// carry a usable audio_url.
func (c *Client) Send(ctx context.Context, sessionID string, payload domain.Payload) (*domain.AgentReply, error) {
	ctx, span := tracer.Start(ctx, "agent chat", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("payload.bytes", len(payload.Data)),
	))
	defer span.End()

	reply, err := c.send(ctx, sessionID, payload, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, sessionID string, payload domain.Payload, span trace.Span) (*domain.AgentReply, error) {
	body, contentType, err := encodeMultipart(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}

	endpoint := c.baseURL + "/agent/chat/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))

	if resp.Header.Get(errorHeader) == "true" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: agent flagged an upstream failure (status %d)", domain.ErrTransport, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &domain.ServerError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
		}
	}

	var reply domain.AgentReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReply)).Decode(&reply); err != nil {
		var netErr net.Error
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w: reading reply: %v", domain.ErrTransport, err)
		}
		return nil, fmt.Errorf("%w: decoding reply: %v", domain.ErrMalformedReply, err)
	}

	if reply.AudioURL != "" {
		resolved, err := c.resolve(reply.AudioURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedReply, err)
		}
		reply.AudioURL = resolved
	}

	if !reply.Valid() {
		return nil, fmt.Errorf("%w: missing audio_url", domain.ErrMalformedReply)
	}

	span.SetAttributes(attribute.Int("reply.text_length", len(reply.Text)))
	return &reply, nil
}

// resolve makes a relative audio locator absolute against the agent's base URL.
func (c *Client) resolve(locator string) (string, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("parsing audio_url: %w", err)
	}
	if ref.IsAbs() {
		return locator, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func encodeMultipart(payload domain.Payload) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, audioField, payload.Filename))
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
