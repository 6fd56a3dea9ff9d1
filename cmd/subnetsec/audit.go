// Copyright (c) 2025 Berik Ashimov

package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type AuditEntry struct {
	ID          int64          `json:"id"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    sql.NullString `json:"-"`
	EntityLabel sql.NullString `json:"-"`
	DetailJSON  sql.NullString `json:"-"`
	CreatedAt   string         `json:"created_at"`
}

type auditRecord struct {
	Actor       string
	Action      string
	EntityType  string
	EntityID    string
	EntityLabel string
	Detail      any
}

func auditActor(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Actor"))
	if actor == "" {
		actor = c.ClientIP()
	}
	if actor == "" {
		actor = "unknown"
	}
	return actor
}

// writeAudit records an operation best-effort; an audit insert failure is
// logged and never fails the operation it describes.
func writeAudit(db *sql.DB, c *gin.Context, record auditRecord) {
	if strings.TrimSpace(record.Actor) == "" && c != nil {
		record.Actor = auditActor(c)
	}
	var detail string
	if record.Detail != nil {
		if body, err := json.Marshal(record.Detail); err == nil {
			detail = string(body)
		}
	}
	_, err := db.Exec(`
		INSERT INTO audit_log(actor, action, entity_type, entity_id, entity_label, detail_json, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		record.Actor,
		record.Action,
		record.EntityType,
		emptyToNull(record.EntityID),
		emptyToNull(record.EntityLabel),
		emptyToNull(detail),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
}

func listAuditEntries(db *sql.DB, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, actor, action, entity_type, entity_id, entity_label, detail_json, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Actor,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.EntityLabel,
			&entry.DetailJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func auditEntryPayload(entry AuditEntry) gin.H {
	payload := gin.H{
		"id":          entry.ID,
		"actor":       entry.Actor,
		"action":      entry.Action,
		"entity_type": entry.EntityType,
		"created_at":  entry.CreatedAt,
	}
	if entry.EntityID.Valid {
		payload["entity_id"] = entry.EntityID.String
	}
	if entry.EntityLabel.Valid {
		payload["entity_label"] = entry.EntityLabel.String
	}
	if entry.DetailJSON.Valid {
		var detail any
		if err := json.Unmarshal([]byte(entry.DetailJSON.String), &detail); err == nil {
			payload["detail"] = detail
		}
	}
	return payload
}

func emptyToNull(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
