// Package archive keeps an audit trail of raw fetch batches.
//
// Archived batches are never read back by the watcher; they exist so an
// operator can reconstruct what the upstream feed returned on a given cycle.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

const contentType = "application/json"

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver serialises raw batches into a BlobStore.
type Archiver struct {
	store  BlobStore
	prefix string
	clock  disclosure.Clock
}

// batch is the on-disk envelope.
type batch struct {
	CycleID    string                 `json:"cycle_id"`
	ArchivedAt time.Time              `json:"archived_at"`
	Count      int                    `json:"count"`
	Records    []disclosure.RawRecord `json:"records"`
}

// New returns an Archiver writing under prefix.
func New(store BlobStore, prefix string, clock disclosure.Clock) *Archiver {
	return &Archiver{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		clock:  clock,
	}
}

// Archive writes records for cycleID and returns the object URI.
func (a *Archiver) Archive(ctx context.Context, cycleID string, records []disclosure.RawRecord) (string, error) {
	now := a.clock.Now().UTC()
	if cycleID == "" {
		cycleID = now.Format("150405.000000000")
	}
	data, err := json.Marshal(batch{
		CycleID:    cycleID,
		ArchivedAt: now,
		Count:      len(records),
		Records:    records,
	})
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	uri, err := a.store.PutObject(ctx, a.objectPath(now, cycleID), contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put batch: %w", err)
	}
	return uri, nil
}

func (a *Archiver) objectPath(now time.Time, cycleID string) string {
	name := path.Join(now.Format("2006"), now.Format("01"), now.Format("02"), cycleID+".json")
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}
