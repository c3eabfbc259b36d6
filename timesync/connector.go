package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorClass partitions connector failures by how the engine must react:
// auth/permission abort the whole pass, validation and transport degrade to
// a conflict for the affected record only.
type ErrorClass string

const (
	ErrorClassAuth       ErrorClass = "auth"
	ErrorClassPermission ErrorClass = "permission"
	ErrorClassValidation ErrorClass = "validation"
	ErrorClassNotFound   ErrorClass = "not_found"
	ErrorClassTransport  ErrorClass = "transport"
)

// APIError is a classified failure from either external system.
type APIError struct {
	Class   ErrorClass
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Class, e.Status, e.Message)
}

// IsFatalError reports whether an error must abort the whole pass rather
// than degrade to a single-record conflict.
func IsFatalError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class == ErrorClassAuth || apiErr.Class == ErrorClassPermission
	}
	return false
}

// Target-side entities the provisioning pipeline works with.

type Organization struct {
	Id   int
	Name string
}

type User struct {
	Id    int
	Email string
	Name  string
}

type Customer struct {
	Id     int
	Name   string
	Number string
}

type NewCustomer struct {
	Name     string
	Number   string
	Country  string
	Currency string
	Timezone string
}

type Project struct {
	Id               int
	Name             string
	Number           string
	CustomerId       int
	GlobalActivities bool
}

type NewProject struct {
	Name             string
	Number           string
	CustomerId       int
	GlobalActivities bool
}

type ProjectPatch struct {
	GlobalActivities *bool
}

type NewTimesheet struct {
	ProjectId   int
	ActivityId  int
	Begin       time.Time
	End         time.Time
	Description string
	Tags        []string
}

type CreatedTimesheet struct {
	Id int
}

// SourceConnector is the capability contract over the ticketing system.
// The concrete HTTP client lives outside this module.
type SourceConnector interface {
	FetchRecords(ctx context.Context, start, end time.Time) ([]NormalizedRecord, error)
	FetchOrganization(ctx context.Context, id int) (*Organization, error)
	FetchUser(ctx context.Context, id int) (*User, error)
}

// TargetConnector is the capability contract over the time-tracking system.
// Find* methods return (nil, nil) when nothing matches.
type TargetConnector interface {
	FetchRecords(ctx context.Context, start, end time.Time) ([]NormalizedRecord, error)

	FindCustomerByNumber(ctx context.Context, number string) (*Customer, error)
	FindCustomerByName(ctx context.Context, name string) (*Customer, error)
	CreateCustomer(ctx context.Context, input NewCustomer) (*Customer, error)

	FindProjectByNumber(ctx context.Context, customerId int, number string) (*Project, error)
	FindProjectsByTicket(ctx context.Context, ticketReference string) ([]Project, error)
	CreateProject(ctx context.Context, input NewProject) (*Project, error)
	PatchProject(ctx context.Context, projectId int, patch ProjectPatch) error

	CreateRecord(ctx context.Context, input NewTimesheet) (*CreatedTimesheet, error)
}
