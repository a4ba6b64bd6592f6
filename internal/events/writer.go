// Package events records the booking audit trail. Events are appended inside
// the transaction that performs the state change, so the log never shows a
// transition that did not commit.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds written by the engine and the auditor.
const (
	ProjectInit         = "project.init"
	ActorOnboarded      = "actor.onboarded"
	AssignmentCreated   = "assignment.created"
	AssignmentActivated = "assignment.activated"
	AssignmentAccepted  = "assignment.accepted"
	AssignmentDeclined  = "assignment.declined"
	AssignmentWithdrawn = "assignment.withdrawn"
	AssignmentAutobound = "assignment.autobound"
	AssignmentRepaired  = "assignment.repaired"
)

// Entity kinds an event may reference.
const (
	EntityProject    = "project"
	EntityActor      = "actor"
	EntityAssignment = "assignment"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, kind, projectID, entityKind, entityID, actorID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, kind, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

// AppendAssignment records a lifecycle event for one role request.
func (w Writer) AppendAssignment(ctx context.Context, tx *sql.Tx, kind, projectID, requestID, actorID string, payload Payload) error {
	return w.Append(ctx, tx, kind, projectID, EntityAssignment, requestID, actorID, payload)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
