// Package hris is the HTTP client for the attendance server.
package hris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"golang.org/x/oauth2"
)

const (
	pathScheduleToday   = "/api/v1/schedules/today"
	pathAttendanceToday = "/api/v1/attendances/today"
	pathClockIn         = "/api/v1/attendances/clock-in"
	pathClockOut        = "/api/v1/attendances/clock-out"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client, including its auth transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client that authenticates every request with tokens from ts.
func New(baseURL string, ts oauth2.TokenSource, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   http.DefaultTransport,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StaticToken wraps a pre-issued access token.
func StaticToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func (c *Client) GetScheduleToday(ctx context.Context) (*schedule.ScheduleForToday, error) {
	var out *schedule.ScheduleForToday
	if _, err := c.get(ctx, pathScheduleToday, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTodayAttendance(ctx context.Context) (*attendance.TodayAttendance, error) {
	var out *attendance.TodayAttendance
	if _, err := c.get(ctx, pathAttendanceToday, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClockIn(ctx context.Context, payload attendance.ClockPayload) (*attendance.SubmissionResult, error) {
	return c.clock(ctx, pathClockIn, payload)
}

func (c *Client) ClockOut(ctx context.Context, payload attendance.ClockPayload) (*attendance.SubmissionResult, error) {
	return c.clock(ctx, pathClockOut, payload)
}

func (c *Client) clock(ctx context.Context, path string, payload attendance.ClockPayload) (*attendance.SubmissionResult, error) {
	body, contentType, err := encodeClockForm(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var data *attendance.AttendanceResponse
	env, err := c.do(req, &data)
	if err != nil {
		return nil, err
	}

	return &attendance.SubmissionResult{Message: env.Message, Attendance: data}, nil
}

func encodeClockForm(p attendance.ClockPayload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"latitude":  strconv.FormatFloat(p.Coordinate.Latitude, 'f', -1, 64),
		"longitude": strconv.FormatFloat(p.Coordinate.Longitude, 'f', -1, 64),
	}
	if p.Coordinate.Address != nil && *p.Coordinate.Address != "" {
		fields["address"] = *p.Coordinate.Address
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	contentType := p.ImageContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	filename := "attendance.jpg"
	if contentType == "image/png" {
		filename = "attendance.png"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(p.Image); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) get(ctx context.Context, path string, out any) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// do sends req and decodes the envelope's data into out. Non-2xx answers
// become *attendance.RejectionError; 5xx and network failures also match ErrTransport.
func (c *Client) do(req *http.Request, out any) (*envelope, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", attendance.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", attendance.ErrTransport, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rejection := &attendance.RejectionError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			rejection.Code = env.Error.Code
			rejection.Message = env.Error.Message
		}
		if decodeErr == nil && rejection.Message == "" {
			rejection.Message = env.Message
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w", attendance.ErrTransport, rejection)
		}
		return nil, rejection
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: invalid response body: %w", attendance.ErrTransport, decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%w: invalid response data: %w", attendance.ErrTransport, err)
		}
	}
	return &env, nil
}
