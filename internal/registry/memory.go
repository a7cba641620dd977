package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryDirectory struct {
	mu          sync.RWMutex
	hospitals   map[uuid.UUID]Hospital
	departments map[uuid.UUID]Department
	doctors     map[uuid.UUID]Doctor
	patients    map[uuid.UUID]Patient
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		hospitals:   make(map[uuid.UUID]Hospital),
		departments: make(map[uuid.UUID]Department),
		doctors:     make(map[uuid.UUID]Doctor),
		patients:    make(map[uuid.UUID]Patient),
	}
}

func (d *MemoryDirectory) AddHospital(h Hospital) Hospital {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	d.mu.Lock()
	d.hospitals[h.ID] = h
	d.mu.Unlock()
	return h
}

func (d *MemoryDirectory) AddDepartment(dep Department) Department {
	if dep.ID == uuid.Nil {
		dep.ID = uuid.New()
	}
	d.mu.Lock()
	d.departments[dep.ID] = dep
	d.mu.Unlock()
	return dep
}

func (d *MemoryDirectory) AddDoctor(doc Doctor) Doctor {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	d.mu.Lock()
	d.doctors[doc.ID] = doc
	d.mu.Unlock()
	return doc
}

func (d *MemoryDirectory) AddPatient(p Patient) Patient {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Rating == 0 {
		p.Rating = DefaultRating
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	d.mu.Lock()
	d.patients[p.ID] = p
	d.mu.Unlock()
	return p
}

func (d *MemoryDirectory) GetHospital(_ context.Context, id uuid.UUID) (*Hospital, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.hospitals[id]
	if !ok {
		return nil, ErrHospitalNotFound
	}
	return &h, nil
}

func (d *MemoryDirectory) GetDepartment(_ context.Context, id uuid.UUID) (*Department, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dep, ok := d.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return &dep, nil
}

func (d *MemoryDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &doc, nil
}

func (d *MemoryDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) GetPatients(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[uuid.UUID]Patient, len(ids))
	for _, id := range ids {
		if p, ok := d.patients[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (d *MemoryDirectory) InsertHospital(_ context.Context, h *Hospital) error {
	*h = d.AddHospital(*h)
	return nil
}

func (d *MemoryDirectory) InsertDepartment(_ context.Context, dep *Department) error {
	*dep = d.AddDepartment(*dep)
	return nil
}

func (d *MemoryDirectory) InsertDoctor(_ context.Context, doc *Doctor) error {
	*doc = d.AddDoctor(*doc)
	return nil
}

func (d *MemoryDirectory) InsertPatient(_ context.Context, p *Patient) error {
	*p = d.AddPatient(*p)
	return nil
}
