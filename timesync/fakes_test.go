package timesync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/timesync_backend/models"
)

// In-memory doubles for the connector and store contracts.

type fakeSource struct {
	records  []NormalizedRecord
	fetchErr error
}

func (f *fakeSource) FetchRecords(_ context.Context, _, _ time.Time) ([]NormalizedRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

func (f *fakeSource) FetchOrganization(_ context.Context, id int) (*Organization, error) {
	return &Organization{Id: id, Name: fmt.Sprintf("Org %d", id)}, nil
}

func (f *fakeSource) FetchUser(_ context.Context, id int) (*User, error) {
	return &User{Id: id, Email: fmt.Sprintf("user%d@example.com", id)}, nil
}

type fakeTarget struct {
	mu sync.Mutex

	records    []NormalizedRecord
	customers  []Customer
	projects   []Project
	timesheets []NewTimesheet

	nextId int

	fetchErr  error
	createErr map[string]error // keyed by marker source id
	patched   []int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{nextId: 1000, createErr: map[string]error{}}
}

func (f *fakeTarget) FetchRecords(_ context.Context, _, _ time.Time) ([]NormalizedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]NormalizedRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeTarget) FindCustomerByNumber(_ context.Context, number string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.customers {
		if f.customers[i].Number == number {
			return &f.customers[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTarget) FindCustomerByName(_ context.Context, name string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.customers {
		if f.customers[i].Name == name {
			return &f.customers[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTarget) CreateCustomer(_ context.Context, input NewCustomer) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextId++
	customer := Customer{Id: f.nextId, Name: input.Name, Number: input.Number}
	f.customers = append(f.customers, customer)
	return &customer, nil
}

func (f *fakeTarget) FindProjectByNumber(_ context.Context, customerId int, number string) (*Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.projects {
		if f.projects[i].CustomerId == customerId && f.projects[i].Number == number {
			return &f.projects[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTarget) FindProjectsByTicket(_ context.Context, ticketReference string) ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Project
	for _, p := range f.projects {
		if ticketReference != "" && strings.Contains(p.Name, ticketReference) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTarget) CreateProject(_ context.Context, input NewProject) (*Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextId++
	project := Project{
		Id:               f.nextId,
		Name:             input.Name,
		Number:           input.Number,
		CustomerId:       input.CustomerId,
		GlobalActivities: input.GlobalActivities,
	}
	f.projects = append(f.projects, project)
	return &project, nil
}

func (f *fakeTarget) PatchProject(_ context.Context, projectId int, patch ProjectPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.projects {
		if f.projects[i].Id == projectId {
			if patch.GlobalActivities != nil {
				f.projects[i].GlobalActivities = *patch.GlobalActivities
			}
			f.patched = append(f.patched, projectId)
			return nil
		}
	}
	return &APIError{Class: ErrorClassNotFound, Status: 404, Message: "project not found"}
}

func (f *fakeTarget) CreateRecord(_ context.Context, input NewTimesheet) (*CreatedTimesheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, sourceId, ok := ParseMarker(input.Description); ok {
		if err := f.createErr[sourceId]; err != nil {
			return nil, err
		}
	}
	f.nextId++
	f.timesheets = append(f.timesheets, input)
	begin := input.Begin
	ticketId, _, _ := ParseMarker(input.Description)
	f.records = append(f.records, NormalizedRecord{
		Source:          SystemKimai,
		SourceId:        strconv.Itoa(f.nextId),
		TicketId:        ticketId,
		Description:     input.Description,
		DurationSeconds: int(input.End.Sub(input.Begin) / time.Second),
		Begin:           &begin,
		EntryDate:       dateOf(begin),
		CreatedAt:       begin,
	})
	return &CreatedTimesheet{Id: f.nextId}, nil
}

type fakeMappings struct {
	byType map[int]int
	err    error
}

func (f *fakeMappings) FindActiveMapping(sourceActivityId int) (*models.ActivityMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	targetId, ok := f.byType[sourceActivityId]
	if !ok {
		return nil, nil
	}
	return &models.ActivityMapping{SourceActivityId: sourceActivityId, TargetActivityId: targetId, IsActive: true}, nil
}

type fakeStore struct {
	mu sync.Mutex

	runs      []*models.SyncRun
	entries   map[string]*models.TimeEntry // keyed by source|source_id
	conflicts []*models.Conflict
	audits    []string

	nextEntryId uint
	pending     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]*models.TimeEntry{}}
}

func (f *fakeStore) CreateSyncRun(triggerType string, start time.Time) (*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &models.SyncRun{
		ID:          uint(len(f.runs) + 1),
		TriggerType: triggerType,
		StartTime:   start,
		Status:      models.SyncRunStatusRunning,
	}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeStore) FinalizeSyncRun(run *models.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.runs {
		if r.ID == run.ID {
			copied := *run
			f.runs[i] = &copied
		}
	}
	return nil
}

func (f *fakeStore) UpsertPendingEntry(rec *NormalizedRecord) (*models.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(rec.Source) + "|" + rec.SourceId
	if existing, ok := f.entries[key]; ok {
		existing.DurationSeconds = rec.DurationSeconds
		return existing, nil
	}
	f.nextEntryId++
	entry := &models.TimeEntry{
		ID:              f.nextEntryId,
		Source:          string(rec.Source),
		SourceId:        rec.SourceId,
		TicketReference: rec.TicketReference,
		DurationSeconds: rec.DurationSeconds,
		EntryDate:       rec.EntryDate,
		SyncStatus:      models.EntrySyncStatusPending,
	}
	f.entries[key] = entry
	return entry, nil
}

func (f *fakeStore) MarkEntrySynced(entryId uint, targetId int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == entryId {
			e.SyncStatus = models.EntrySyncStatusSynced
			e.TargetId = &targetId
		}
	}
	return nil
}

func (f *fakeStore) MarkEntryStatus(entryId uint, status, syncError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == entryId {
			e.SyncStatus = status
			e.SyncError = syncError
		}
	}
	return nil
}

func (f *fakeStore) FindDuplicateConflict(ticketRef string, sourceCreatedAt time.Time, durationSeconds int) (*models.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conflicts {
		if c.ResolutionStatus != models.ResolutionStatusPending {
			continue
		}
		if c.TicketReference == ticketRef && c.DurationSeconds == durationSeconds &&
			c.SourceCreatedAt != nil && c.SourceCreatedAt.Equal(sourceCreatedAt) {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateConflict(conflict *models.Conflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conflict.ID = uint(len(f.conflicts) + 1)
	f.conflicts = append(f.conflicts, conflict)
	return nil
}

func (f *fakeStore) CountPendingConflicts() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != 0 {
		return f.pending, nil
	}
	var count int64
	for _, c := range f.conflicts {
		if c.ResolutionStatus == models.ResolutionStatusPending {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Audit(action, _ string, _ *uint, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, action)
	return nil
}

func (f *fakeStore) entryByKey(source System, sourceId string) *models.TimeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[string(source)+"|"+sourceId]
}
