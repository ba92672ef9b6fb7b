package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain/doctor"
	"github.com/otikev/health-app/internal/domain/patient"
)

type DoctorRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]doctor.Doctor
}

func NewDoctorRepository() *DoctorRepository {
	return &DoctorRepository{byID: make(map[uuid.UUID]doctor.Doctor)}
}

func (r *DoctorRepository) Create(_ context.Context, d *doctor.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, d.Email) {
			return doctor.ErrDoctorAlreadyExists
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.byID[d.ID] = *d
	return nil
}

func (r *DoctorRepository) GetByID(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *DoctorRepository) List(_ context.Context, q *doctor.ListDoctorsQuery) (*doctor.PagedDoctors, error) {
	r.mu.RLock()
	matched := make([]*doctor.Doctor, 0, len(r.byID))
	for _, stored := range r.byID {
		d := stored
		if q.Specialization != "" && !strings.EqualFold(d.Specialization, q.Specialization) {
			continue
		}
		matched = append(matched, &d)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].FullName() < matched[j].FullName() })

	lo, hi := pageBounds(len(matched), q.Page, q.PageSize)
	return &doctor.PagedDoctors{
		Doctors:    matched[lo:hi],
		TotalCount: int64(len(matched)),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages(int64(len(matched)), q.PageSize),
	}, nil
}

type PatientRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]patient.Patient
}

func NewPatientRepository() *PatientRepository {
	return &PatientRepository{byID: make(map[uuid.UUID]patient.Patient)}
}

func (r *PatientRepository) Create(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, p.Email) {
			return patient.ErrPatientAlreadyExists
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.byID[p.ID] = *p
	return nil
}

func (r *PatientRepository) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok || p.DeletedAt != nil {
		return nil, patient.ErrPatientNotFound
	}
	return &p, nil
}

func (r *PatientRepository) List(_ context.Context, q *patient.ListPatientsQuery) (*patient.PagedPatients, error) {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	r.mu.RLock()
	matched := make([]*patient.Patient, 0, len(r.byID))
	for _, stored := range r.byID {
		p := stored
		if p.DeletedAt != nil {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.FullName()), search) {
			continue
		}
		matched = append(matched, &p)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].FullName() < matched[j].FullName() })

	lo, hi := pageBounds(len(matched), q.Page, q.PageSize)
	return &patient.PagedPatients{
		Patients:   matched[lo:hi],
		TotalCount: int64(len(matched)),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages(int64(len(matched)), q.PageSize),
	}, nil
}
