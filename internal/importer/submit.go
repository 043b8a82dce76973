package importer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-admin/internal/model"
)

// submitBatch writes one batch of records into the durable collection with a
// single read-modify-write. Records whose taxId already exists get a
// per-item "duplicate key" error and are skipped; everything else is
// assigned an id and timestamps and appended. The returned error covers
// store failures only — item-level duplicates never fail the batch.
func (o *Orchestrator) submitBatch(ctx context.Context, records []model.Lead) ([]model.Lead, []model.ImportError, error) {
	leads, err := o.store.ReadCollection(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "importer: read collection")
	}

	existing := make(map[string]struct{}, len(leads))
	for _, l := range leads {
		existing[l.TaxID] = struct{}{}
	}

	now := o.opts.Now().UTC()
	var inserted []model.Lead
	var itemErrs []model.ImportError

	for _, rec := range records {
		if _, dup := existing[rec.TaxID]; dup {
			itemErrs = append(itemErrs, model.ImportError{
				TaxID:      rec.TaxID,
				LineNumber: rec.LineNumber,
				Message:    duplicateKeyMessage,
			})
			continue
		}

		rec.ID = uuid.New().String()
		rec.CreatedAt = now
		rec.UpdatedAt = now
		existing[rec.TaxID] = struct{}{}
		leads = append(leads, rec)
		inserted = append(inserted, rec)
	}

	if err := o.store.WriteCollection(ctx, leads); err != nil {
		return nil, nil, eris.Wrap(err, "importer: write collection")
	}
	return inserted, itemErrs, nil
}
