package clinic

import (
	"context"

	"github.com/google/uuid"
)

// Repository errors are *apperr.Error values: NotFound for missing rows,
// Conflict for unique violations, Internal for anything unexpected.

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	// GetByUserID returns the doctor joined to its user.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	// List returns every doctor with its user, ordered by name.
	List(ctx context.Context) ([]*Doctor, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	// GetByUserID returns the patient joined to its user.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// List returns one page of patients with their users and the size of
	// the whole filtered set.
	List(ctx context.Context, q PatientQuery) ([]*Patient, int, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	// GetByID returns the record with patient{user} and doctor{user}.
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatient returns records newest first, each with doctor{user}.
	ListByPatient(ctx context.Context, patientID uuid.UUID, f RecordFilter) ([]*MedicalRecord, error)
	// ListByDoctor returns records newest first, each with patient{user}.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*MedicalRecord, error)
	Stats(ctx context.Context) (*DashboardStats, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
