// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

var storeTracer = otel.Tracer("aleutian.audit.store")

var (
	// ErrAuditNotFound is returned when no record exists for an ID.
	ErrAuditNotFound = errors.New("audit not found")

	// ErrAuditExists is returned when creating an audit whose ID is taken.
	ErrAuditExists = errors.New("audit already exists")

	// ErrReportFrozen is returned on any attempt to write a report into
	// an audit that already holds one. Completed audits are immutable.
	ErrReportFrozen = errors.New("audit report is frozen and cannot be rewritten")
)

// IsNotFound reports whether err indicates a missing audit record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAuditNotFound)
}

const auditKeyPrefix = "audit:"

func auditKey(id uuid.UUID) []byte {
	return []byte(auditKeyPrefix + id.String())
}

// AuditStore persists audit lifecycle records in BadgerDB.
//
// All mutations go through read-modify-write transactions so concurrent
// pipeline stages and HTTP reads never observe torn records.
type AuditStore struct {
	db *badger.DB
}

// NewAuditStore wraps an opened database.
func NewAuditStore(db *badger.DB) (*AuditStore, error) {
	if db == nil {
		return nil, errors.New("database handle must not be nil")
	}
	return &AuditStore{db: db}, nil
}

// Create persists a new audit record. Fails if the ID already exists.
func (s *AuditStore) Create(ctx context.Context, audit *datatypes.Audit) error {
	_, span := storeTracer.Start(ctx, "AuditStore.Create")
	defer span.End()
	span.SetAttributes(attribute.String("audit.id", audit.ID.String()))

	key := auditKey(audit.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrAuditExists, audit.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check audit existence: %w", err)
		}
		payload, err := json.Marshal(audit)
		if err != nil {
			return fmt.Errorf("encode audit record: %w", err)
		}
		return txn.Set(key, payload)
	})
}

// Get returns the audit record for the given ID.
func (s *AuditStore) Get(ctx context.Context, id uuid.UUID) (*datatypes.Audit, error) {
	_, span := storeTracer.Start(ctx, "AuditStore.Get")
	defer span.End()

	var audit datatypes.Audit
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(auditKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrAuditNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("read audit record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &audit)
		})
	})
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

// Update applies mutate to the stored record inside one transaction.
//
// The mutate function sees the current record and returns an error to
// abort. Report immutability is enforced here regardless of what mutate
// does: once a report payload exists it cannot change.
func (s *AuditStore) Update(ctx context.Context, id uuid.UUID, mutate func(*datatypes.Audit) error) (*datatypes.Audit, error) {
	_, span := storeTracer.Start(ctx, "AuditStore.Update")
	defer span.End()
	span.SetAttributes(attribute.String("audit.id", id.String()))

	var updated datatypes.Audit
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(auditKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrAuditNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("read audit record: %w", err)
		}

		var current datatypes.Audit
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return fmt.Errorf("decode audit record: %w", err)
		}

		frozenBefore := current.Frozen()
		priorReport := string(current.Report)

		if err := mutate(&current); err != nil {
			return err
		}

		if frozenBefore && string(current.Report) != priorReport {
			return fmt.Errorf("%w: %s", ErrReportFrozen, id)
		}

		payload, err := json.Marshal(&current)
		if err != nil {
			return fmt.Errorf("encode audit record: %w", err)
		}
		if err := txn.Set(auditKey(id), payload); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Transition advances the audit's lifecycle state with its progress
// checkpoint, enforcing the legal transition graph.
func (s *AuditStore) Transition(ctx context.Context, id uuid.UUID, next datatypes.AuditStatus, progress float64) (*datatypes.Audit, error) {
	return s.Update(ctx, id, func(a *datatypes.Audit) error {
		return a.Transition(next, progress)
	})
}

// SaveReport writes the completed report payload exactly once and moves
// the audit to COMPLETED. A second call returns ErrReportFrozen.
func (s *AuditStore) SaveReport(ctx context.Context, id uuid.UUID, report json.RawMessage) (*datatypes.Audit, error) {
	return s.Update(ctx, id, func(a *datatypes.Audit) error {
		if a.Frozen() {
			return fmt.Errorf("%w: %s", ErrReportFrozen, id)
		}
		if err := a.Transition(datatypes.AuditCompleted, 1.0); err != nil {
			return err
		}
		a.Report = report
		return nil
	})
}

// MarkFailed records a terminal failure with its cause.
func (s *AuditStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error) (*datatypes.Audit, error) {
	return s.Update(ctx, id, func(a *datatypes.Audit) error {
		if a.Frozen() {
			return fmt.Errorf("%w: %s", ErrReportFrozen, id)
		}
		a.Fail(cause)
		return nil
	})
}
