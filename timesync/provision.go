package timesync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/timesync_backend/utils"
)

// ErrUnmappedActivity is returned by ResolveActivity when no mapping and
// no default activity exist for a source activity type.
type ErrUnmappedActivity struct {
	ActivityName string
	SourceTypeId int
}

func (e *ErrUnmappedActivity) Error() string {
	return fmt.Sprintf("no target activity for %q (type %d)", e.ActivityName, e.SourceTypeId)
}

// ProvisionSettings are the operator-configured defaults the provisioning
// pipeline applies when it has to create target-side entities.
type ProvisionSettings struct {
	DefaultActivityId int
	IgnoreUnmapped    bool
	Timezone          string
	Country           string
	Currency          string
	ProvenanceTag     string
	MarkerWindowDays  int
	DurationTolerance time.Duration
}

// Provisioner creates the target-side customer/project/timesheet chain for
// records that are missing from the target. All lookups go number-first so
// renames in the target UI don't cause duplicates.
type Provisioner struct {
	target   TargetConnector
	mappings MappingStore
	settings ProvisionSettings
	logger   *logrus.Logger
}

func NewProvisioner(target TargetConnector, mappings MappingStore, settings ProvisionSettings, logger *logrus.Logger) *Provisioner {
	if settings.MarkerWindowDays <= 0 {
		settings.MarkerWindowDays = 7
	}
	return &Provisioner{target: target, mappings: mappings, settings: settings, logger: logger}
}

// CustomerNumber is the deterministic lookup key for a customer. Records
// without an organization fall back to a per-ticket customer.
func CustomerNumber(rec *NormalizedRecord) string {
	if rec.OrgId != 0 {
		return fmt.Sprintf("ORG-%d", rec.OrgId)
	}
	return fmt.Sprintf("TICKET-%d", rec.TicketId)
}

// ProjectNumber is the deterministic lookup key for a ticket's project.
func ProjectNumber(rec *NormalizedRecord) string {
	return fmt.Sprintf("TICKET-%d", rec.TicketId)
}

// EnsureCustomer finds or creates the customer a record belongs to.
// Lookup order: by number, by name, then create.
func (p *Provisioner) EnsureCustomer(ctx context.Context, rec *NormalizedRecord) (*Customer, error) {
	number := CustomerNumber(rec)

	customer, err := p.target.FindCustomerByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		return customer, nil
	}

	name := rec.OrgName
	if name == "" {
		name = rec.CustomerName
	}
	if name != "" {
		customer, err = p.target.FindCustomerByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if customer != nil {
			return customer, nil
		}
	}
	if name == "" {
		name = fmt.Sprintf("Ticket %s", rec.TicketReference)
	}

	created, err := p.target.CreateCustomer(ctx, NewCustomer{
		Name:     name,
		Number:   number,
		Country:  p.settings.Country,
		Currency: p.settings.Currency,
		Timezone: p.settings.Timezone,
	})
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{
		"customer_id": created.Id,
		"number":      number,
	}).Info("provisioned customer")
	return created, nil
}

// EnsureProject finds or creates the per-ticket project under a customer.
// Existing projects that don't allow all activities get patched, otherwise
// timesheet creation fails on activities scoped to other projects.
func (p *Provisioner) EnsureProject(ctx context.Context, customer *Customer, rec *NormalizedRecord) (*Project, error) {
	number := ProjectNumber(rec)

	project, err := p.target.FindProjectByNumber(ctx, customer.Id, number)
	if err != nil {
		return nil, err
	}
	if project == nil && rec.TicketReference != "" {
		// Projects created by hand won't carry the number; fall back to
		// a name search for the ticket reference.
		candidates, err := p.target.FindProjectsByTicket(ctx, rec.TicketReference)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			if candidates[i].CustomerId == customer.Id {
				project = &candidates[i]
				break
			}
		}
	}

	if project != nil {
		if !project.GlobalActivities {
			if err := p.target.PatchProject(ctx, project.Id, ProjectPatch{GlobalActivities: utils.NewTrue()}); err != nil {
				return nil, err
			}
			project.GlobalActivities = true
		}
		return project, nil
	}

	name := fmt.Sprintf("Ticket %s", rec.TicketReference)
	if rec.TicketTitle != "" {
		name = fmt.Sprintf("Ticket %s - %s", rec.TicketReference, rec.TicketTitle)
	}
	created, err := p.target.CreateProject(ctx, NewProject{
		Name:             name,
		Number:           number,
		CustomerId:       customer.Id,
		GlobalActivities: true,
	})
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{
		"project_id": created.Id,
		"number":     number,
	}).Info("provisioned project")
	return created, nil
}

// ResolveActivity maps a source activity type to a target activity id.
// Falls back to the configured default; without either the record cannot
// be synced.
func (p *Provisioner) ResolveActivity(rec *NormalizedRecord) (int, error) {
	mapping, err := p.mappings.FindActiveMapping(rec.ActivityTypeId)
	if err != nil {
		return 0, err
	}
	if mapping != nil {
		return mapping.TargetActivityId, nil
	}
	if p.settings.DefaultActivityId != 0 {
		return p.settings.DefaultActivityId, nil
	}
	return 0, &ErrUnmappedActivity{ActivityName: rec.ActivityName, SourceTypeId: rec.ActivityTypeId}
}

// LookupExisting searches the target window around the record's entry date
// for a timesheet already carrying this record's marker. This is the last
// guard before creation and makes re-runs idempotent even when the local
// database was wiped.
func (p *Provisioner) LookupExisting(ctx context.Context, rec *NormalizedRecord) (*NormalizedRecord, error) {
	window := time.Duration(p.settings.MarkerWindowDays) * 24 * time.Hour
	start := rec.EntryDate.Add(-window)
	end := rec.EntryDate.Add(window + 24*time.Hour)

	existing, err := p.target.FetchRecords(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if HasMarkerPrefix(existing[i].Description, rec) {
			return &existing[i], nil
		}
	}
	return nil, nil
}

// CreateTimesheet writes the record to the target system. Begin is the
// source creation instant rendered in the target timezone; a synthetic
// begin would collide with real entries on re-runs.
func (p *Provisioner) CreateTimesheet(ctx context.Context, project *Project, activityId int, rec *NormalizedRecord) (*CreatedTimesheet, error) {
	begin := utils.ConvertToLocalTime(rec.CreatedAt, p.settings.Timezone)
	end := begin.Add(rec.Duration())

	tags := append([]string(nil), rec.Tags...)
	if p.settings.ProvenanceTag != "" {
		tags = append(tags, p.settings.ProvenanceTag)
	}

	return p.target.CreateRecord(ctx, NewTimesheet{
		ProjectId:   project.Id,
		ActivityId:  activityId,
		Begin:       begin,
		End:         end,
		Description: MarkedDescription(rec),
		Tags:        utils.UniqueSlice(tags),
	})
}
