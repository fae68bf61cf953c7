// Package apiclient talks to the campus attendance REST service.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campus/internal/attendance"
	"campus/internal/auth"
)

// HTTPError is a non-2xx response. Unwrap yields the domain sentinel named by
// the response code, so errors.Is(err, attendance.ErrAlreadyMarked) works.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("campus api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("campus api %d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	if err := attendance.ErrorForCode(e.Code); err != nil {
		return err
	}
	switch e.Status {
	case http.StatusForbidden:
		return attendance.ErrForbidden
	case http.StatusNotFound:
		return attendance.ErrNotFound
	case http.StatusUnauthorized:
		return auth.ErrBadCredentials
	}
	return nil
}

// Client implements attendance.Remote over HTTP.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

var _ attendance.Remote = (*Client)(nil)

// Login exchanges user id and password for a token pair.
func (c *Client) Login(ctx context.Context, userID int64, password string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	err := c.do(ctx, http.MethodPost, "/v1/sessions", map[string]any{"userId": userID, "password": password}, &pair)
	return pair, err
}

// Refresh rotates a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	var pair auth.TokenPair
	err := c.do(ctx, http.MethodPost, "/v1/sessions/refresh", map[string]string{"refreshToken": refreshToken}, &pair)
	return pair, err
}

func (c *Client) CreateToken(ctx context.Context, subjectID int64) (attendance.Token, error) {
	var tok attendance.Token
	err := c.do(ctx, http.MethodPost, "/v1/attendance_token", map[string]int64{"subjectId": subjectID}, &tok)
	return tok, err
}

func (c *Client) CreateRecord(ctx context.Context, rec attendance.NewRecord) (attendance.Record, error) {
	var out attendance.Record
	err := c.do(ctx, http.MethodPost, "/v1/attendance", rec, &out)
	return out, err
}

func (c *Client) CreateRecords(ctx context.Context, recs []attendance.NewRecord) ([]attendance.Record, error) {
	var out struct {
		Records []attendance.Record `json:"records"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/attendance/bulk", map[string]any{"records": recs}, &out)
	return out.Records, err
}

func (c *Client) Enrollments(ctx context.Context, subjectID int64) ([]attendance.Enrollment, error) {
	var out struct {
		Enrollments []attendance.Enrollment `json:"enrollments"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/enrollment/subject/"+itoa(subjectID), nil, &out)
	return out.Enrollments, err
}

func (c *Client) RecordsBySubjectDate(ctx context.Context, subjectID int64, date string) ([]attendance.Record, error) {
	q := url.Values{"subjectId": {itoa(subjectID)}, "date": {date}}
	return c.records(ctx, "/v1/attendance/subject-date?"+q.Encode())
}

func (c *Client) RecordsBySubject(ctx context.Context, subjectID int64) ([]attendance.Record, error) {
	return c.records(ctx, "/v1/attendance/subject/"+itoa(subjectID))
}

func (c *Client) RecordsByStudent(ctx context.Context, studentID int64) ([]attendance.Record, error) {
	return c.records(ctx, "/v1/attendance/student/"+itoa(studentID))
}

func (c *Client) RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]attendance.Record, error) {
	return c.records(ctx, "/v1/attendance/subject/"+itoa(subjectID)+"/student/"+itoa(studentID))
}

func (c *Client) Subjects(ctx context.Context) ([]attendance.Subject, error) {
	var out struct {
		Subjects []attendance.Subject `json:"subjects"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/subjects", nil, &out)
	return out.Subjects, err
}

// EnqueueReconcile asks the server to reconcile in the background.
func (c *Client) EnqueueReconcile(ctx context.Context, subjectID int64, date string) error {
	return c.do(ctx, http.MethodPost, "/v1/reconcile", map[string]any{"subjectId": subjectID, "date": date}, nil)
}

func (c *Client) records(ctx context.Context, path string) ([]attendance.Record, error) {
	var out struct {
		Records []attendance.Record `json:"records"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Records, err
}

// do sends body as JSON and decodes a 2xx response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("campus api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	herr := &HTTPError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		herr.Message, herr.Code = body.Error, body.Code
	} else {
		herr.Message = strings.TrimSpace(string(raw))
		if herr.Message == "" {
			herr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return herr
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.Status == status
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
