package clinic

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/internal/platform/auth"
	"github.com/clinicrecords/records/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the clinic routes on the /api group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctor/create", h.CreateDoctor)

	// Doctor-only reads and every write.
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/doctor/get/:id", h.GetDoctor)
	doctor.GET("/patients", h.ListPatients)
	doctor.GET("/dashboard/stats", h.DashboardStats)
	doctor.POST("/patient/create", h.CreatePatient)
	doctor.POST("/medical_record/create", h.CreateMedicalRecord)
	doctor.PUT("/medical_record/update/:id", h.UpdateMedicalRecord)
	doctor.DELETE("/medical_record/delete/:id", h.DeleteMedicalRecord)

	// Reads open to patients for their own data.
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	read.GET("/doctors", h.ListDoctors)
	read.GET("/patient/get/:id", h.GetPatient, auth.RequirePatientAccess("id"))
	read.PUT("/patient/update/:id", h.UpdatePatient, auth.RequirePatientAccess("id"))
	read.GET("/medical_record/get/:patientId", h.ListMedicalRecords, auth.RequirePatientAccess("patientId"))
	read.GET("/medical_record/record/:id", h.GetMedicalRecord)
}

// -- Doctors --

type doctorCreated struct {
	User   *User   `json:"user"`
	Doctor *Doctor `json:"doctor"`
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req DoctorRegistration
	if err := bind(c, &req); err != nil {
		return err
	}
	u, d, err := h.svc.RegisterDoctor(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, doctorCreated{User: u, Doctor: d})
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctorByUserID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	docs, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, docs)
}

// -- Patients --

type patientCreated struct {
	User    *User    `json:"user"`
	Patient *Patient `json:"patient"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req PatientRegistration
	if err := bind(c, &req); err != nil {
		return err
	}
	u, p, err := h.svc.RegisterPatient(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, patientCreated{User: u, Patient: p})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatientByUserID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch PatientPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatientProfile(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	q, err := patientQueryFromContext(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.ListPatients(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) DashboardStats(c echo.Context) error {
	stats, err := h.svc.DashboardStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// -- Medical records --

func (h *Handler) CreateMedicalRecord(c echo.Context) error {
	var req RecordInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		self, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return apperr.Forbidden("principal is not a doctor account")
		}
		if req.DoctorID == uuid.Nil {
			req.DoctorID = self
		}
		if req.DoctorID != self {
			return apperr.Forbidden("doctors can only author their own records")
		}
	}
	rec, err := h.svc.CreateMedicalRecord(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListMedicalRecords(c echo.Context) error {
	id, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	f, err := recordFilterFromContext(c)
	if err != nil {
		return err
	}
	recs, err := h.svc.ListMedicalRecordsByPatient(c.Request().Context(), id, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) GetMedicalRecord(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rec, err := h.svc.GetMedicalRecord(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanAccessPatient(ctx, rec.PatientID.String()) {
		// Same answer as a missing record.
		return apperr.NotFound("medical record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateMedicalRecord(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch RecordPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.checkAuthor(c, id); err != nil {
		return err
	}
	rec, err := h.svc.UpdateMedicalRecord(ctx, id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteMedicalRecord(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.checkAuthor(c, id); err != nil {
		return err
	}
	if err := h.svc.DeleteMedicalRecord(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// checkAuthor lets admins through and limits doctors to their own records.
func (h *Handler) checkAuthor(c echo.Context, recordID uuid.UUID) error {
	ctx := c.Request().Context()
	if auth.HasRole(ctx, auth.RoleAdmin) {
		return nil
	}
	rec, err := h.svc.GetMedicalRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.DoctorID.String() != auth.UserIDFromContext(ctx) {
		return apperr.Forbidden("doctors can only modify their own records")
	}
	return nil
}

// -- Request parsing --

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func recordFilterFromContext(c echo.Context) (RecordFilter, error) {
	var f RecordFilter
	f.Status = RecordStatus(strings.TrimSpace(c.QueryParam("status")))
	if raw := c.QueryParam("doctorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, apperr.Validation("invalid doctorId")
		}
		f.DoctorID = id
	}
	for name, dst := range map[string]**Date{"from": &f.From, "to": &f.To} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		d, err := ParseDate(raw)
		if err != nil {
			return f, apperr.Validation("%s: %v", name, err)
		}
		*dst = &d
	}
	return f, nil
}

func patientQueryFromContext(c echo.Context) (PatientQuery, error) {
	page, err := pagination.FromContext(c)
	if err != nil {
		return PatientQuery{}, apperr.Validation("%s", strings.TrimPrefix(err.Error(), pagination.ErrInvalid.Error()+": "))
	}
	f, err := recordFilterFromContext(c)
	if err != nil {
		return PatientQuery{}, err
	}
	return PatientQuery{
		Search:  c.QueryParam("search"),
		Page:    page,
		Sort:    c.QueryParam("sort"),
		Order:   strings.ToLower(c.QueryParam("order")),
		Gender:  Gender(strings.ToUpper(c.QueryParam("gender"))),
		Records: f,
	}, nil
}
