package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is a bun model keyed by a uuid string column named id. Both
// methods tolerate a nil receiver.
type keyedRecord interface {
	recordID() string
	setRecordID(id string)
}

func (r *integrationRecord) recordID() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.ID)
}

func (r *integrationRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *syncLogRecord) recordID() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.ID)
}

func (r *syncLogRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func keyedHandlers[R keyedRecord](newRecord func() R) repository.ModelHandlers[R] {
	return repository.ModelHandlers[R]{
		NewRecord: newRecord,
		GetID: func(record R) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record R, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record R) string {
			return record.recordID()
		},
	}
}

func integrationHandlers() repository.ModelHandlers[*integrationRecord] {
	return keyedHandlers(func() *integrationRecord { return &integrationRecord{} })
}

func syncLogHandlers() repository.ModelHandlers[*syncLogRecord] {
	return keyedHandlers(func() *syncLogRecord { return &syncLogRecord{} })
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
