// Package client is a typed HTTP client for the records API. Every method
// blocks until the server answers or ctx is done.
package client

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

	"github.com/google/uuid"

	"github.com/clinicrecords/records/internal/domain/clinic"
	"github.com/clinicrecords/records/internal/platform/auth"
	"github.com/clinicrecords/records/pkg/pagination"
)

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("records api: %d %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }
func IsConflict(err error) bool { return StatusCode(err) == http.StatusConflict }

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type Client struct {
	base  string
	http  *http.Client
	token string
}

// New returns a client for the server at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetToken replaces the bearer token, typically after Login.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			apiErr.Message = eb.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// -- Auth --

func (c *Client) Login(ctx context.Context, email, password string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, auth.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*auth.Principal, error) {
	var out auth.Principal
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -- Doctors --

type DoctorCreated struct {
	User   *clinic.User   `json:"user"`
	Doctor *clinic.Doctor `json:"doctor"`
}

func (c *Client) CreateDoctor(ctx context.Context, reg clinic.DoctorRegistration) (*DoctorCreated, error) {
	var out DoctorCreated
	if err := c.do(ctx, http.MethodPost, "/api/doctor/create", nil, reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDoctor(ctx context.Context, userID uuid.UUID) (*clinic.DoctorDetail, error) {
	var out clinic.DoctorDetail
	if err := c.do(ctx, http.MethodGet, "/api/doctor/get/"+userID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListDoctors(ctx context.Context) ([]*clinic.Doctor, error) {
	var out []*clinic.Doctor
	if err := c.do(ctx, http.MethodGet, "/api/doctors", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// -- Patients --

type PatientCreated struct {
	User    *clinic.User    `json:"user"`
	Patient *clinic.Patient `json:"patient"`
}

func (c *Client) CreatePatient(ctx context.Context, reg clinic.PatientRegistration) (*PatientCreated, error) {
	var out PatientCreated
	if err := c.do(ctx, http.MethodPost, "/api/patient/create", nil, reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPatient(ctx context.Context, userID uuid.UUID) (*clinic.PatientDetail, error) {
	var out clinic.PatientDetail
	if err := c.do(ctx, http.MethodGet, "/api/patient/get/"+userID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePatient(ctx context.Context, userID uuid.UUID, patch clinic.PatientPatch) (*clinic.Patient, error) {
	var out clinic.Patient
	if err := c.do(ctx, http.MethodPut, "/api/patient/update/"+userID.String(), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatientListOptions mirrors the dashboard's list state. Zero values are
// omitted and take the server defaults.
type PatientListOptions struct {
	Search   string
	Page     int
	PageSize int
	Sort     string
	Order    string
	Gender   clinic.Gender
	Status   clinic.RecordStatus
	DoctorID uuid.UUID
	From     *clinic.Date
	To       *clinic.Date
}

func (o PatientListOptions) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("search", o.Search)
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(o.PageSize))
	}
	set("sort", o.Sort)
	set("order", o.Order)
	set("gender", string(o.Gender))
	set("status", string(o.Status))
	if o.DoctorID != uuid.Nil {
		q.Set("doctorId", o.DoctorID.String())
	}
	if o.From != nil {
		q.Set("from", o.From.String())
	}
	if o.To != nil {
		q.Set("to", o.To.String())
	}
	return q
}

func (c *Client) ListPatients(ctx context.Context, opts PatientListOptions) (*pagination.Response[*clinic.Patient], error) {
	var out pagination.Response[*clinic.Patient]
	if err := c.do(ctx, http.MethodGet, "/api/patients", opts.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -- Medical records --

func (c *Client) CreateMedicalRecord(ctx context.Context, in clinic.RecordInput) (*clinic.MedicalRecord, error) {
	var out clinic.MedicalRecord
	if err := c.do(ctx, http.MethodPost, "/api/medical_record/create", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordFilterOptions narrows ListMedicalRecords.
type RecordFilterOptions struct {
	Status   clinic.RecordStatus
	DoctorID uuid.UUID
	From     *clinic.Date
	To       *clinic.Date
}

func (c *Client) ListMedicalRecords(ctx context.Context, patientID uuid.UUID, f RecordFilterOptions) ([]*clinic.MedicalRecord, error) {
	q := PatientListOptions{Status: f.Status, DoctorID: f.DoctorID, From: f.From, To: f.To}.values()
	var out []*clinic.MedicalRecord
	if err := c.do(ctx, http.MethodGet, "/api/medical_record/get/"+patientID.String(), q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMedicalRecord(ctx context.Context, id uuid.UUID) (*clinic.MedicalRecord, error) {
	var out clinic.MedicalRecord
	if err := c.do(ctx, http.MethodGet, "/api/medical_record/record/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMedicalRecord(ctx context.Context, id uuid.UUID, patch clinic.RecordPatch) (*clinic.MedicalRecord, error) {
	var out clinic.MedicalRecord
	if err := c.do(ctx, http.MethodPut, "/api/medical_record/update/"+id.String(), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMedicalRecord(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/medical_record/delete/"+id.String(), nil, nil, nil)
}

func (c *Client) DashboardStats(ctx context.Context) (*clinic.DashboardStats, error) {
	var out clinic.DashboardStats
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
