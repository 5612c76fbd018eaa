package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the audit trail from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSQL = `
SELECT occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE left(action, 5) = 'rbac.'
  AND ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::uuid IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR left(action, length($6)) = $6)
ORDER BY occurred_at DESC, id DESC
OFFSET $7 LIMIT $8`

// Timeline returns audit rows for RBAC actions matching q.
func (r *PGRepository) Timeline(ctx context.Context, q TimelineQuery) ([]TimelineRow, error) {
	var actor pgtype.UUID
	if q.Actor != uuid.Nil {
		actor = pgtype.UUID{Bytes: q.Actor, Valid: true}
	}
	rows, err := r.pool.Query(ctx, timelineSQL,
		optionalTime(q.From),
		optionalTime(q.To),
		actor,
		optionalText(q.Entity),
		optionalText(q.EntityID),
		optionalText(q.Action),
		q.Offset,
		q.Limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out     TimelineRow
			actorID pgtype.UUID
			meta    []byte
		)
		if err := row.Scan(&out.At, &actorID, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if actorID.Valid {
			id := uuid.UUID(actorID.Bytes)
			out.ActorID = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, err
			}
		}
		return out, nil
	})
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
