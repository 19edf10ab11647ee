package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/catalog"
	"fiscalops/internal/engine/classify"
	"fiscalops/internal/engine/deadline"
	"fiscalops/internal/engine/lifecycle"
)

// GenerateOptions parameterize GenerateOperationalProcedure. Zero values fall
// back to the built-in thresholds and calendar.
type GenerateOptions struct {
	Ref         time.Time
	ProcedureID string
	Name        string
	Thresholds  classify.Thresholds
	Resolver    deadline.Resolver
}

// GenerateOperationalProcedure classifies profile and assembles a new active
// procedure for it. It performs no I/O.
func GenerateOperationalProcedure(profile *domain.ClientProfile, opts GenerateOptions) (domain.ProcedureRequirements, domain.Procedure, error) {
	ref := opts.Ref
	if ref.IsZero() {
		ref = time.Now()
	}
	req, err := classify.New(opts.Thresholds).Classify(profile, ref)
	if err != nil {
		return req, domain.Procedure{}, err
	}
	tasks, err := catalog.New(opts.Resolver).Generate(profile, req, ref)
	if err != nil {
		return req, domain.Procedure{}, err
	}
	id := opts.ProcedureID
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = defaultName(profile, ref)
	}
	p := domain.Procedure{
		ID:            id,
		ClientID:      profile.ID,
		Name:          name,
		Status:        domain.ProcedureActive,
		ProcedureType: req.ProcedureType,
		Complexity:    req.Complexity,
		Requirements:  req,
		Tasks:         tasks,
		NextTaskSeq:   len(tasks) + 1,
		Version:       1,
		CreatedAt:     ref,
		UpdatedAt:     ref,
	}
	lifecycle.Recompute(&p, ref)
	return req, p, nil
}

func defaultName(profile *domain.ClientProfile, ref time.Time) string {
	client := strings.TrimSpace(profile.Name)
	if client == "" {
		client = "Client"
	}
	return fmt.Sprintf("%s compliance %d", client, ref.Year())
}
