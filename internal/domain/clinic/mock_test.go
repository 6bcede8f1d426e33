package clinic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/internal/platform/websocket"
)

// mockStore is an in-memory stand-in for the four tables. WithinTx restores
// a snapshot when fn fails, like a rolled back transaction.
type mockStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*User
	doctors  map[uuid.UUID]*Doctor
	patients map[uuid.UUID]*Patient
	records  map[uuid.UUID]*MedicalRecord
	txCalls  int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    make(map[uuid.UUID]*User),
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
		records:  make(map[uuid.UUID]*MedicalRecord),
	}
}

func (s *mockStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.txCalls++
	users := copyMap(s.users)
	doctors := copyMap(s.doctors)
	patients := copyMap(s.patients)
	records := copyMap(s.records)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.users, s.doctors, s.patients, s.records = users, doctors, patients, records
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[T any](m map[uuid.UUID]*T) map[uuid.UUID]*T {
	out := make(map[uuid.UUID]*T, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (s *mockStore) service(opts ...Option) *Service {
	return NewService(&mockUserRepo{s}, &mockDoctorRepo{s}, &mockPatientRepo{s}, &mockRecordRepo{s}, s, opts...)
}

func (s *mockStore) userCopy(id uuid.UUID) *User {
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *mockStore) doctorCopy(id uuid.UUID) *Doctor {
	d, ok := s.doctors[id]
	if !ok {
		return nil
	}
	cp := *d
	cp.User = s.userCopy(id)
	return &cp
}

func (s *mockStore) patientCopy(id uuid.UUID) *Patient {
	p, ok := s.patients[id]
	if !ok {
		return nil
	}
	cp := *p
	cp.User = s.userCopy(id)
	return &cp
}

// -- Users --

type mockUserRepo struct{ s *mockStore }

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("a user with this email already exists")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	stamp(&u.CreatedAt, &u.UpdatedAt)
	cp := *u
	m.s.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u := m.s.userCopy(id); u != nil {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, u := range m.s.users {
		if strings.EqualFold(u.Email, email) {
			return m.s.userCopy(id), nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[u.ID]; !ok {
		return apperr.NotFound("user not found")
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	m.s.users[u.ID] = &cp
	return nil
}

// -- Doctors --

type mockDoctorRepo struct{ s *mockStore }

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[d.UserID]; !ok {
		return apperr.NotFound("user not found")
	}
	if _, ok := m.s.doctors[d.UserID]; ok {
		return apperr.Conflict("user already has a doctor profile")
	}
	for _, existing := range m.s.doctors {
		if existing.LicenseNumber == d.LicenseNumber {
			return apperr.Conflict("a doctor with this license number already exists")
		}
	}
	stamp(&d.CreatedAt, &d.UpdatedAt)
	cp := *d
	cp.User = nil
	m.s.doctors[d.UserID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if d := m.s.doctorCopy(id); d != nil {
		return d, nil
	}
	return nil, apperr.NotFound("doctor not found")
}

func (m *mockDoctorRepo) List(_ context.Context) ([]*Doctor, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*Doctor{}
	for id := range m.s.doctors {
		out = append(out, m.s.doctorCopy(id))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].User.Name) < strings.ToLower(out[j].User.Name)
	})
	return out, nil
}

// -- Patients --

type mockPatientRepo struct{ s *mockStore }

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[p.UserID]; !ok {
		return apperr.NotFound("user not found")
	}
	if _, ok := m.s.patients[p.UserID]; ok {
		return apperr.Conflict("user already has a patient profile")
	}
	stamp(&p.CreatedAt, &p.UpdatedAt)
	cp := *p
	cp.User = nil
	m.s.patients[p.UserID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if p := m.s.patientCopy(id); p != nil {
		return p, nil
	}
	return nil, apperr.NotFound("patient not found")
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.patients[p.UserID]; !ok {
		return apperr.NotFound("patient not found")
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	cp.User = nil
	m.s.patients[p.UserID] = &cp
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, q PatientQuery) ([]*Patient, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []*Patient
	for id := range m.s.patients {
		p := m.s.patientCopy(id)
		if search != "" && !strings.Contains(strings.ToLower(p.User.Name), search) &&
			!strings.Contains(strings.ToLower(p.User.Email), search) {
			continue
		}
		if q.Gender != "" && p.Gender != q.Gender {
			continue
		}
		if !q.Records.empty() && !m.hasRecord(id, q.Records) {
			continue
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		less := strings.ToLower(matched[i].User.Name) < strings.ToLower(matched[j].User.Name)
		if q.Order == "desc" {
			return !less
		}
		return less
	})

	total := len(matched)
	start := q.Page.Offset()
	if start > total {
		start = total
	}
	end := start + q.Page.Limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *mockPatientRepo) hasRecord(patientID uuid.UUID, f RecordFilter) bool {
	for _, r := range m.s.records {
		if r.PatientID == patientID && matchRecord(r, f) {
			return true
		}
	}
	return false
}

func matchRecord(r *MedicalRecord, f RecordFilter) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.DoctorID != uuid.Nil && r.DoctorID != f.DoctorID {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(f.From.Time) {
		return false
	}
	if f.To != nil && !r.CreatedAt.Before(f.To.Time.Add(24*time.Hour)) {
		return false
	}
	return true
}

// -- Records --

type mockRecordRepo struct{ s *mockStore }

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.patients[r.PatientID]; !ok {
		return apperr.NotFound("referenced patient does not exist")
	}
	if _, ok := m.s.doctors[r.DoctorID]; !ok {
		return apperr.NotFound("referenced doctor does not exist")
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	stamp(&r.CreatedAt, &r.UpdatedAt)
	cp := *r
	cp.Patient, cp.Doctor = nil, nil
	m.s.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) full(id uuid.UUID) *MedicalRecord {
	r, ok := m.s.records[id]
	if !ok {
		return nil
	}
	cp := *r
	cp.Patient = m.s.patientCopy(r.PatientID)
	cp.Doctor = m.s.doctorCopy(r.DoctorID)
	return &cp
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r := m.full(id); r != nil {
		return r, nil
	}
	return nil, apperr.NotFound("medical record not found")
}

func (m *mockRecordRepo) Update(_ context.Context, r *MedicalRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.records[r.ID]; !ok {
		return apperr.NotFound("medical record not found")
	}
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	cp.Patient, cp.Doctor = nil, nil
	m.s.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.records[id]; !ok {
		return apperr.NotFound("medical record not found")
	}
	delete(m.s.records, id)
	return nil
}

func (m *mockRecordRepo) list(keep func(*MedicalRecord) bool) []*MedicalRecord {
	out := []*MedicalRecord{}
	for id, r := range m.s.records {
		if keep(r) {
			out = append(out, m.full(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, f RecordFilter) ([]*MedicalRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := m.list(func(r *MedicalRecord) bool { return r.PatientID == patientID && matchRecord(r, f) })
	for _, r := range out {
		r.Patient = nil
	}
	return out, nil
}

func (m *mockRecordRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*MedicalRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := m.list(func(r *MedicalRecord) bool { return r.DoctorID == doctorID })
	for _, r := range out {
		r.Doctor = nil
	}
	return out, nil
}

func (m *mockRecordRepo) Stats(_ context.Context) (*DashboardStats, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	s := &DashboardStats{
		TotalPatients: len(m.s.patients),
		TotalDoctors:  len(m.s.doctors),
		TotalRecords:  len(m.s.records),
	}
	for _, r := range m.s.records {
		if r.Status == StatusActive {
			s.ActiveRecords++
		}
		if r.FollowUpDate != nil {
			s.FollowUps++
		}
	}
	return s, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (f *fakePublisher) Publish(_ context.Context, ev websocket.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}
