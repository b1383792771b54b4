package domain

import (
	"encoding/json"
	"time"
)

// AuditEntry — запись журнала аудита. Пишется в той же транзакции,
// что и изменение ресурса, и не подлежит изменению.
type AuditEntry struct {
	ID           string
	ResourceType string
	ResourceID   string
	Action       string
	PerformedBy  string
	// PreviousData и NewData — JSON-снимки ресурса до и после изменения.
	PreviousData json.RawMessage
	NewData      json.RawMessage
	CreatedAt    time.Time
}
