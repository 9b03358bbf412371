package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koshroy/outpost/models"
)

// schema is the activity/object/collection table layout, grounded on
// the actors/activities/objects/collections tables in go-ap/fedbox's
// postgres backend: a narrow relational shell (id, collection
// membership, insertion ordering) around a jsonb blob holding the full
// canonical record, so every SPEC_FULL.md field addition doesn't
// require a migration.
const schema = `
CREATE TABLE IF NOT EXISTS objects (
	id        text PRIMARY KEY,
	doc       jsonb NOT NULL
);

CREATE TABLE IF NOT EXISTS activities (
	id           text PRIMARY KEY,
	doc          jsonb NOT NULL,
	inserted_at  bigserial
);

CREATE TABLE IF NOT EXISTS collection_membership (
	activity_id     text NOT NULL REFERENCES activities(id),
	collection_iri  text NOT NULL,
	inserted_at     bigserial,
	PRIMARY KEY (activity_id, collection_iri)
);

CREATE INDEX IF NOT EXISTS collection_membership_by_iri
	ON collection_membership (collection_iri, inserted_at);

CREATE TABLE IF NOT EXISTS delivery_requeue (
	id           bigserial PRIMARY KEY,
	recipient    text NOT NULL,
	activity_id  text NOT NULL,
	attempt      int NOT NULL,
	not_before   timestamptz NOT NULL
);
`

// PostgresStore is the deployment-grade ActivityStore backend, pooled
// over jackc/pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to postgres: %v", ErrStoreUnavailable, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: applying schema: %v", ErrStoreUnavailable, err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func newPgID(prefix string) string {
	u, err := uuid.NewV4()
	if err != nil {
		return prefix + time.Now().UTC().Format(time.RFC3339Nano)
	}
	return prefix + u.String()
}

// SaveActivity implements ActivityStore.
func (p *PostgresStore) SaveActivity(ctx context.Context, a *models.Activity) error {
	if a.ID == "" {
		a.ID = newPgID("urn:outpost:activity:")
	}

	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: marshaling activity: %v", ErrStoreUnavailable, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO activities (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc
	`, a.ID, doc)
	if err != nil {
		return fmt.Errorf("%w: saving activity: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SaveObject implements ActivityStore.
func (p *PostgresStore) SaveObject(ctx context.Context, o *models.Object) error {
	if o.ID == "" {
		o.ID = newPgID("urn:outpost:object:")
	}

	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("%w: marshaling object: %v", ErrStoreUnavailable, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO objects (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc
	`, o.ID, doc)
	if err != nil {
		return fmt.Errorf("%w: saving object: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetActivity implements ActivityStore.
func (p *PostgresStore) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM activities WHERE id = $1`, id).Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading activity: %v", ErrStoreUnavailable, err)
	}

	var a models.Activity
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("%w: decoding activity: %v", ErrStoreUnavailable, err)
	}
	return &a, nil
}

// GetObject implements ActivityStore.
func (p *PostgresStore) GetObject(ctx context.Context, id string) (*models.Object, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM objects WHERE id = $1`, id).Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading object: %v", ErrStoreUnavailable, err)
	}

	var o models.Object
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, fmt.Errorf("%w: decoding object: %v", ErrStoreUnavailable, err)
	}
	return &o, nil
}

// UpdateObject implements ActivityStore, serializing the read-merge-write
// per object id behind a row lock.
func (p *PostgresStore) UpdateObject(ctx context.Context, partial *models.Object) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning tx: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM objects WHERE id = $1 FOR UPDATE`, partial.ID).Scan(&doc)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: loading object for update: %v", ErrStoreUnavailable, err)
	}

	var existing models.Object
	if err := json.Unmarshal(doc, &existing); err != nil {
		return fmt.Errorf("%w: decoding object: %v", ErrStoreUnavailable, err)
	}
	existing.MergeFrom(partial)

	newDoc, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("%w: marshaling merged object: %v", ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE objects SET doc = $2 WHERE id = $1`, partial.ID, newDoc); err != nil {
		return fmt.Errorf("%w: saving merged object: %v", ErrStoreUnavailable, err)
	}

	return tx.Commit(ctx)
}

// UpdateObjectInActivities implements ActivityStore by scanning every
// activity whose doc embeds an object with a matching id. This trades
// an index for simplicity; SPEC_FULL.md does not put this operation on
// any latency-sensitive path (it runs once per Update, off the request
// path that matters for federation fan-out).
func (p *PostgresStore) UpdateObjectInActivities(ctx context.Context, o *models.Object) error {
	rows, err := p.pool.Query(ctx, `SELECT id, doc FROM activities`)
	if err != nil {
		return fmt.Errorf("%w: scanning activities: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	type patch struct {
		id  string
		doc []byte
	}
	var patches []patch

	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return fmt.Errorf("%w: reading activity row: %v", ErrStoreUnavailable, err)
		}

		var a models.Activity
		if err := json.Unmarshal(doc, &a); err != nil {
			continue
		}

		changed := false
		for i, v := range a.Object {
			if v.Embedded != nil && v.Embedded.ID == o.ID {
				cp := *o
				a.Object[i] = models.Value{Embedded: &cp}
				changed = true
			}
		}
		if !changed {
			continue
		}

		newDoc, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("%w: marshaling patched activity: %v", ErrStoreUnavailable, err)
		}
		patches = append(patches, patch{id: id, doc: newDoc})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating activities: %v", ErrStoreUnavailable, err)
	}

	for _, pt := range patches {
		if _, err := p.pool.Exec(ctx, `UPDATE activities SET doc = $2 WHERE id = $1`, pt.id, pt.doc); err != nil {
			return fmt.Errorf("%w: saving patched activity: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// InsertIntoCollection implements ActivityStore.
func (p *PostgresStore) InsertIntoCollection(ctx context.Context, activityID, collectionIRI string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning tx: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM activities WHERE id = $1 FOR UPDATE`, activityID).Scan(&doc)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: loading activity for tagging: %v", ErrStoreUnavailable, err)
	}

	var a models.Activity
	if err := json.Unmarshal(doc, &a); err != nil {
		return fmt.Errorf("%w: decoding activity: %v", ErrStoreUnavailable, err)
	}
	a.AddCollection(collectionIRI)

	newDoc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: marshaling tagged activity: %v", ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE activities SET doc = $2 WHERE id = $1`, activityID, newDoc); err != nil {
		return fmt.Errorf("%w: saving tagged activity: %v", ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO collection_membership (activity_id, collection_iri) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, activityID, collectionIRI); err != nil {
		return fmt.Errorf("%w: recording membership: %v", ErrStoreUnavailable, err)
	}

	return tx.Commit(ctx)
}

// RemoveFromCollection implements ActivityStore.
func (p *PostgresStore) RemoveFromCollection(ctx context.Context, activityID, collectionIRI string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning tx: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM activities WHERE id = $1 FOR UPDATE`, activityID).Scan(&doc)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("%w: loading activity for untagging: %v", ErrStoreUnavailable, err)
	}
	if err == nil {
		var a models.Activity
		if err := json.Unmarshal(doc, &a); err == nil {
			a.RemoveCollection(collectionIRI)
			if newDoc, err := json.Marshal(a); err == nil {
				_, _ = tx.Exec(ctx, `UPDATE activities SET doc = $2 WHERE id = $1`, activityID, newDoc)
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM collection_membership WHERE activity_id = $1 AND collection_iri = $2
	`, activityID, collectionIRI); err != nil {
		return fmt.Errorf("%w: removing membership: %v", ErrStoreUnavailable, err)
	}

	return tx.Commit(ctx)
}

// DeleteActivity implements ActivityStore.
func (p *PostgresStore) DeleteActivity(ctx context.Context, id string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning tx: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM collection_membership WHERE activity_id = $1`, id); err != nil {
		return fmt.Errorf("%w: removing membership: %v", ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: deleting activity: %v", ErrStoreUnavailable, err)
	}

	return tx.Commit(ctx)
}

// GetStream implements ActivityStore, newest-first by insertion key.
func (p *PostgresStore) GetStream(ctx context.Context, collectionIRI string, cursor string, limit int) (StreamPage, error) {
	if limit <= 0 {
		limit = 20
	}

	var cursorKey int64 = 1<<63 - 1
	if cursor != "" {
		err := p.pool.QueryRow(ctx, `
			SELECT inserted_at FROM collection_membership
			WHERE activity_id = $1 AND collection_iri = $2
		`, cursor, collectionIRI).Scan(&cursorKey)
		if err != nil && err != pgx.ErrNoRows {
			return StreamPage{}, fmt.Errorf("%w: resolving cursor: %v", ErrStoreUnavailable, err)
		}
	}

	rows, err := p.pool.Query(ctx, `
		SELECT activity_id, inserted_at FROM collection_membership
		WHERE collection_iri = $1 AND inserted_at < $2
		ORDER BY inserted_at DESC
		LIMIT $3
	`, collectionIRI, cursorKey, limit+1)
	if err != nil {
		return StreamPage{}, fmt.Errorf("%w: querying stream: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var insertedAt int64
		if err := rows.Scan(&id, &insertedAt); err != nil {
			return StreamPage{}, fmt.Errorf("%w: reading stream row: %v", ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return StreamPage{}, fmt.Errorf("%w: iterating stream: %v", ErrStoreUnavailable, err)
	}

	next := ""
	if len(ids) > limit {
		next = ids[limit-1]
		ids = ids[:limit]
	}

	return StreamPage{ActivityIDs: ids, Next: next}, nil
}

// CollectionCount implements ActivityStore.
func (p *PostgresStore) CollectionCount(ctx context.Context, collectionIRI string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM collection_membership WHERE collection_iri = $1
	`, collectionIRI).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting collection: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// DeliveryRequeue implements ActivityStore.
func (p *PostgresStore) DeliveryRequeue(ctx context.Context, recipient, activityID string, attempt int, notBefore time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO delivery_requeue (recipient, activity_id, attempt, not_before)
		VALUES ($1, $2, $3, $4)
	`, recipient, activityID, attempt, notBefore)
	if err != nil {
		return fmt.Errorf("%w: recording requeue: %v", ErrStoreUnavailable, err)
	}
	return nil
}
