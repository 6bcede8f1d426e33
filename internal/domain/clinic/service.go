package clinic

import (
	"context"
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/internal/platform/auth"
	"github.com/clinicrecords/records/internal/platform/websocket"
	"github.com/clinicrecords/records/pkg/pagination"
)

const minPasswordLength = 8

// DoctorRegistration creates a doctor user and its doctor profile together.
type DoctorRegistration struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	LicenseNumber  string `json:"licenseNumber"`
	Password       string `json:"password,omitempty"`
	// CreatedAt backdates the rows; zero means now.
	CreatedAt time.Time `json:"-"`
}

// PatientProfile holds the optional descriptive patient fields.
type PatientProfile struct {
	PhoneNumber       *string    `json:"phoneNumber,omitempty"`
	Address           *string    `json:"address,omitempty"`
	EmergencyContact  *string    `json:"emergencyContact,omitempty"`
	BloodType         *BloodType `json:"bloodType,omitempty"`
	Allergies         []string   `json:"allergies,omitempty"`
	ChronicConditions []string   `json:"chronicConditions,omitempty"`
}

// PatientRegistration creates a patient user and its patient profile together.
type PatientRegistration struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      Gender `json:"gender"`
	Password    string `json:"password,omitempty"`
	PatientProfile
	// CreatedAt backdates the rows; zero means now.
	CreatedAt time.Time `json:"-"`
}

// PatientPatch edits a patient. Nil fields are left unchanged; an empty
// string clears an optional text field.
type PatientPatch struct {
	Name              *string    `json:"name,omitempty"`
	DateOfBirth       *string    `json:"dateOfBirth,omitempty"`
	Gender            *Gender    `json:"gender,omitempty"`
	PhoneNumber       *string    `json:"phoneNumber,omitempty"`
	Address           *string    `json:"address,omitempty"`
	EmergencyContact  *string    `json:"emergencyContact,omitempty"`
	BloodType         *BloodType `json:"bloodType,omitempty"`
	Allergies         *[]string  `json:"allergies,omitempty"`
	ChronicConditions *[]string  `json:"chronicConditions,omitempty"`
}

// RecordInput is a new medical record.
type RecordInput struct {
	PatientID    uuid.UUID    `json:"patientId"`
	DoctorID     uuid.UUID    `json:"doctorId"`
	Description  string       `json:"description"`
	Diagnosis    string       `json:"diagnosis"`
	Treatment    string       `json:"treatment"`
	Status       RecordStatus `json:"status,omitempty"`
	FollowUpDate *Date        `json:"followUpDate,omitempty"`
	Symptoms     []string     `json:"symptoms,omitempty"`
	Medications  []Medication `json:"medications,omitempty"`
	TestResults  []TestResult `json:"testResults,omitempty"`
	Notes        *string      `json:"notes,omitempty"`
	// CreatedAt backdates the record; zero means now.
	CreatedAt time.Time `json:"-"`
}

// RecordPatch edits a medical record. Nil fields are left unchanged.
type RecordPatch struct {
	Description  *string       `json:"description,omitempty"`
	Diagnosis    *string       `json:"diagnosis,omitempty"`
	Treatment    *string       `json:"treatment,omitempty"`
	Status       *RecordStatus `json:"status,omitempty"`
	FollowUpDate *Date         `json:"followUpDate,omitempty"`
	Symptoms     *[]string     `json:"symptoms,omitempty"`
	Medications  *[]Medication `json:"medications,omitempty"`
	TestResults  *[]TestResult `json:"testResults,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
}

type Service struct {
	users    UserRepository
	doctors  DoctorRepository
	patients PatientRepository
	records  RecordRepository
	tx       TxRunner
	events   websocket.EventPublisher
	logger   zerolog.Logger
}

type Option func(*Service)

// WithEventPublisher publishes record.created/updated/deleted events.
func WithEventPublisher(p websocket.EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(users UserRepository, doctors DoctorRepository, patients PatientRepository,
	records RecordRepository, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		users:    users,
		doctors:  doctors,
		patients: patients,
		records:  records,
		tx:       tx,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Users --

func (s *Service) CreateUser(ctx context.Context, email, name string, role Role) (*User, error) {
	return s.createUser(ctx, email, name, role, "", time.Time{})
}

func (s *Service) createUser(ctx context.Context, email, name string, role Role, password string, createdAt time.Time) (*User, error) {
	u := &User{Email: strings.TrimSpace(email), Name: strings.TrimSpace(name), Role: role, CreatedAt: createdAt}
	if err := validateUser(u); err != nil {
		return nil, err
	}
	if password != "" {
		if len(password) < minPasswordLength {
			return nil, apperr.Validation("password must be at least %d characters", minPasswordLength)
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		u.PasswordHash = &hash
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func validateUser(u *User) error {
	if u.Email == "" {
		return apperr.Validation("email is required")
	}
	if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
		return apperr.Validation("email is malformed")
	}
	if u.Name == "" {
		return apperr.Validation("name is required")
	}
	if !u.Role.Valid() {
		return apperr.Validation("role must be doctor or patient")
	}
	return nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, strings.TrimSpace(email))
}

// LookupCredentials resolves a login email for the auth handler.
func (s *Service) LookupCredentials(ctx context.Context, email string) (*auth.Credentials, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	creds := &auth.Credentials{
		UserID: u.ID.String(),
		Email:  u.Email,
		Name:   u.Name,
		Role:   string(u.Role),
	}
	if u.PasswordHash != nil {
		creds.PasswordHash = *u.PasswordHash
	}
	return creds, nil
}

// requireRole loads the user and checks it can take a role extension.
func (s *Service) requireRole(ctx context.Context, userID uuid.UUID, role Role) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != role {
		return apperr.Conflict("user has role %s, not %s", u.Role, role)
	}
	return nil
}

// -- Doctors --

func (s *Service) CreateDoctor(ctx context.Context, userID uuid.UUID, specialization, licenseNumber string) (*Doctor, error) {
	return s.createDoctor(ctx, &Doctor{UserID: userID, Specialization: specialization, LicenseNumber: licenseNumber})
}

func (s *Service) createDoctor(ctx context.Context, d *Doctor) (*Doctor, error) {
	d.Specialization = strings.TrimSpace(d.Specialization)
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	if d.Specialization == "" {
		return nil, apperr.Validation("specialization is required")
	}
	if d.LicenseNumber == "" {
		return nil, apperr.Validation("licenseNumber is required")
	}
	if err := s.requireRole(ctx, d.UserID, RoleDoctor); err != nil {
		return nil, err
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// RegisterDoctor creates the user and the doctor in one transaction.
func (s *Service) RegisterDoctor(ctx context.Context, reg DoctorRegistration) (*User, *Doctor, error) {
	var (
		u *User
		d *Doctor
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if u, err = s.createUser(ctx, reg.Email, reg.Name, RoleDoctor, reg.Password, reg.CreatedAt); err != nil {
			return err
		}
		d, err = s.createDoctor(ctx, &Doctor{
			UserID:         u.ID,
			Specialization: reg.Specialization,
			LicenseNumber:  reg.LicenseNumber,
			CreatedAt:      reg.CreatedAt,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, d, nil
}

func (s *Service) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*DoctorDetail, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListByDoctor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*MedicalRecord{}
	}
	return &DoctorDetail{Doctor: *d, Records: recs}, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	docs, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*Doctor{}
	}
	return docs, nil
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, userID uuid.UUID, dateOfBirth string, gender Gender, profile PatientProfile) (*Patient, error) {
	return s.createPatient(ctx, userID, dateOfBirth, gender, profile, time.Time{})
}

func (s *Service) createPatient(ctx context.Context, userID uuid.UUID, dateOfBirth string, gender Gender, profile PatientProfile, createdAt time.Time) (*Patient, error) {
	dob, err := ParseDate(dateOfBirth)
	if err != nil {
		return nil, apperr.Validation("dateOfBirth: %v", err)
	}
	p := &Patient{
		UserID:            userID,
		DateOfBirth:       dob,
		Gender:            gender,
		PhoneNumber:       optional(profile.PhoneNumber),
		Address:           optional(profile.Address),
		EmergencyContact:  optional(profile.EmergencyContact),
		BloodType:         profile.BloodType,
		Allergies:         normalizeList(profile.Allergies),
		ChronicConditions: normalizeList(profile.ChronicConditions),
		CreatedAt:         createdAt,
	}
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, userID, RolePatient); err != nil {
		return nil, err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func validatePatient(p *Patient) error {
	if !p.Gender.Valid() {
		return apperr.Validation("gender must be one of MALE, FEMALE, OTHER")
	}
	if p.DateOfBirth.IsZero() {
		return apperr.Validation("dateOfBirth is required")
	}
	if p.BloodType != nil && !p.BloodType.Valid() {
		return apperr.Validation("bloodType %q is not recognized", *p.BloodType)
	}
	return nil
}

// RegisterPatient creates the user and the patient in one transaction.
func (s *Service) RegisterPatient(ctx context.Context, reg PatientRegistration) (*User, *Patient, error) {
	var (
		u *User
		p *Patient
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if u, err = s.createUser(ctx, reg.Email, reg.Name, RolePatient, reg.Password, reg.CreatedAt); err != nil {
			return err
		}
		p, err = s.createPatient(ctx, u.ID, reg.DateOfBirth, reg.Gender, reg.PatientProfile, reg.CreatedAt)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, p, nil
}

func (s *Service) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*PatientDetail, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	recs, err := s.ListMedicalRecordsByPatient(ctx, userID, RecordFilter{})
	if err != nil {
		return nil, err
	}
	return &PatientDetail{Patient: *p, Records: recs}, nil
}

// UpdatePatientProfile applies patch to the patient and its user in one
// transaction.
func (s *Service) UpdatePatientProfile(ctx context.Context, userID uuid.UUID, patch PatientPatch) (*Patient, error) {
	var out *Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if p.User == nil {
			if p.User, err = s.users.GetByID(ctx, userID); err != nil {
				return err
			}
		}

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return apperr.Validation("name is required")
			}
			p.User.Name = name
		}
		if patch.DateOfBirth != nil {
			dob, err := ParseDate(*patch.DateOfBirth)
			if err != nil {
				return apperr.Validation("dateOfBirth: %v", err)
			}
			p.DateOfBirth = dob
		}
		if patch.Gender != nil {
			p.Gender = *patch.Gender
		}
		if patch.PhoneNumber != nil {
			p.PhoneNumber = optional(patch.PhoneNumber)
		}
		if patch.Address != nil {
			p.Address = optional(patch.Address)
		}
		if patch.EmergencyContact != nil {
			p.EmergencyContact = optional(patch.EmergencyContact)
		}
		if patch.BloodType != nil {
			p.BloodType = patch.BloodType
			if *patch.BloodType == "" {
				p.BloodType = nil
			}
		}
		if patch.Allergies != nil {
			p.Allergies = normalizeList(*patch.Allergies)
		}
		if patch.ChronicConditions != nil {
			p.ChronicConditions = normalizeList(*patch.ChronicConditions)
		}
		if err := validatePatient(p); err != nil {
			return err
		}

		if err := s.users.Update(ctx, p.User); err != nil {
			return err
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPatients returns one page of patients matching q.
func (s *Service) ListPatients(ctx context.Context, q PatientQuery) (*pagination.Response[*Patient], error) {
	if q.Page == (pagination.Params{}) {
		q.Page = pagination.Default()
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	items, total, err := s.patients.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return pagination.NewResponse(items, total, q.Page), nil
}

// -- Medical records --

func (s *Service) CreateMedicalRecord(ctx context.Context, in RecordInput) (*MedicalRecord, error) {
	rec := &MedicalRecord{
		PatientID:    in.PatientID,
		DoctorID:     in.DoctorID,
		Description:  strings.TrimSpace(in.Description),
		Diagnosis:    strings.TrimSpace(in.Diagnosis),
		Treatment:    strings.TrimSpace(in.Treatment),
		Status:       in.Status,
		FollowUpDate: in.FollowUpDate,
		Symptoms:     normalizeList(in.Symptoms),
		Medications:  in.Medications,
		TestResults:  in.TestResults,
		Notes:        optional(in.Notes),
		CreatedAt:    in.CreatedAt,
	}
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	if rec.PatientID == uuid.Nil {
		return nil, apperr.Validation("patientId is required")
	}
	if rec.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctorId is required")
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	patient, err := s.patients.GetByUserID(ctx, rec.PatientID)
	if err != nil {
		return nil, notFoundAs(err, "patient not found")
	}
	doctor, err := s.doctors.GetByUserID(ctx, rec.DoctorID)
	if err != nil {
		return nil, notFoundAs(err, "doctor not found")
	}

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	rec.Patient = patient
	rec.Doctor = doctor
	s.publish(ctx, websocket.EventRecordCreated, rec)
	return rec, nil
}

func validateRecord(r *MedicalRecord) error {
	switch {
	case r.Description == "":
		return apperr.Validation("description is required")
	case r.Diagnosis == "":
		return apperr.Validation("diagnosis is required")
	case r.Treatment == "":
		return apperr.Validation("treatment is required")
	case !r.Status.Valid():
		return apperr.Validation("status must be one of ACTIVE, RESOLVED, FOLLOW_UP")
	}
	for i, m := range r.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return apperr.Validation("medications[%d].name is required", i)
		}
	}
	for i, t := range r.TestResults {
		if strings.TrimSpace(t.Name) == "" {
			return apperr.Validation("testResults[%d].name is required", i)
		}
	}
	return nil
}

func (s *Service) GetMedicalRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return s.records.GetByID(ctx, id)
}

// ListMedicalRecordsByPatient returns the patient's records newest first. An
// unknown patient yields an empty list.
func (s *Service) ListMedicalRecordsByPatient(ctx context.Context, patientID uuid.UUID, f RecordFilter) ([]*MedicalRecord, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	recs, err := s.records.ListByPatient(ctx, patientID, f)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*MedicalRecord{}
	}
	return recs, nil
}

func (s *Service) UpdateMedicalRecord(ctx context.Context, id uuid.UUID, patch RecordPatch) (*MedicalRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Description != nil {
		rec.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Diagnosis != nil {
		rec.Diagnosis = strings.TrimSpace(*patch.Diagnosis)
	}
	if patch.Treatment != nil {
		rec.Treatment = strings.TrimSpace(*patch.Treatment)
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.FollowUpDate != nil {
		rec.FollowUpDate = patch.FollowUpDate
	}
	if patch.Symptoms != nil {
		rec.Symptoms = normalizeList(*patch.Symptoms)
	}
	if patch.Medications != nil {
		rec.Medications = *patch.Medications
	}
	if patch.TestResults != nil {
		rec.TestResults = *patch.TestResults
	}
	if patch.Notes != nil {
		rec.Notes = optional(patch.Notes)
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventRecordUpdated, rec)
	return rec, nil
}

func (s *Service) DeleteMedicalRecord(ctx context.Context, id uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, websocket.EventRecordDeleted, &MedicalRecord{
		ID:        rec.ID,
		PatientID: rec.PatientID,
		DoctorID:  rec.DoctorID,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
	return nil
}

func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	return s.records.Stats(ctx)
}

func (s *Service) publish(ctx context.Context, eventType string, rec *MedicalRecord) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", rec.ID.String()).Msg("encode record event")
		return
	}
	ev := websocket.RecordEvent(eventType, rec.ID.String(), rec.PatientID.String(), rec.DoctorID.String(), data)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("record_id", rec.ID.String()).Msg("publish record event")
	}
}

// notFoundAs replaces the message of a NotFound error.
func notFoundAs(err error, msg string) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Wrap(apperr.KindNotFound, msg, err)
	}
	return err
}

// optional trims s and maps blank to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
