package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	ProcedureGenerated     = "procedure.generated"
	ProcedureStatusUpdated = "procedure.status.updated"
	TaskStatusUpdated      = "task.status.updated"
	TaskAutoCompleted      = "task.auto_completed"
	TaskUnlocked           = "task.unlocked"
	TaskAdded              = "task.added"
	ClientCreated          = "client.created"
	ClientUpdated          = "client.updated"
)

// Types lists every event type, in the order they are documented.
var Types = []string{
	ClientCreated, ClientUpdated, ProcedureGenerated, ProcedureStatusUpdated,
	TaskAdded, TaskStatusUpdated, TaskAutoCompleted, TaskUnlocked,
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record is one event to append.
type Record struct {
	Type        string
	ProcedureID string
	EntityKind  string
	EntityID    string
	ActorID     string
	Payload     EventPayload
}

// Append writes rec inside tx so the event commits with the change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,procedure_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, rec.Type, nullable(rec.ProcedureID), rec.EntityKind, nullable(rec.EntityID), rec.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", rec.Type, err)
	}
	return nil
}

// AppendAll writes recs in order.
func (w Writer) AppendAll(ctx context.Context, tx *sql.Tx, recs []Record) error {
	for _, rec := range recs {
		if err := w.Append(ctx, tx, rec); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
