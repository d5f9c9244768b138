package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

// Postgres keeps plans in bulk_plans and their steps in bulk_plan_steps.
type Postgres struct {
	db *DB
}

func NewPostgres(db *DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the journal tables if they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create journal schema")
	}
	return nil
}

type planRow struct {
	ID          string     `db:"id"`
	Backend     string     `db:"backend"`
	Operation   string     `db:"operation"`
	Source      string     `db:"source"`
	From        string     `db:"rule_from"`
	To          string     `db:"rule_to"`
	Destination string     `db:"destination"`
	Status      string     `db:"status"`
	Error       string     `db:"error"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
	Steps       int        `db:"steps"`
}

type stepRow struct {
	PlanID      string `db:"plan_id"`
	Index       int    `db:"idx"`
	Source      []byte `db:"source"`
	Destination string `db:"destination"`
	State       string `db:"state"`
	Error       string `db:"error"`
}

func (p *Postgres) CreatePlan(ctx context.Context, pl *plan.Plan) error {
	return p.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bulk_plans (
				id, backend, operation, source, rule_from, rule_to,
				destination, status, error, created_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			pl.ID, pl.Backend, string(pl.Operation), pl.Source, pl.From, pl.To,
			pl.Destination, string(pl.Status), pl.Error, pl.CreatedAt, pl.CompletedAt,
		)
		if err != nil {
			return errors.Wrap(err, "insert plan")
		}
		for _, s := range pl.Steps {
			if err := upsertStep(ctx, tx, pl.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) UpdatePlan(ctx context.Context, pl *plan.Plan) error {
	return p.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bulk_plans
			SET status = $1, error = $2, completed_at = $3
			WHERE id = $4
		`, string(pl.Status), pl.Error, pl.CompletedAt, pl.ID)
		if err != nil {
			return errors.Wrap(err, "update plan")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(storage.ErrNotFound, "plan %s", pl.ID)
		}
		for _, s := range pl.Steps {
			if err := upsertStep(ctx, tx, pl.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) UpdateStep(ctx context.Context, planID string, step plan.Step) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bulk_plan_steps
		SET state = $1, error = $2
		WHERE plan_id = $3 AND idx = $4
	`, string(step.State), step.Error, planID, step.Index)
	if err != nil {
		return errors.Wrap(err, "update step")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(storage.ErrNotFound, "plan %s step %d", planID, step.Index)
	}
	return nil
}

func upsertStep(ctx context.Context, tx *sqlx.Tx, planID string, s plan.Step) error {
	src, err := json.Marshal(s.Source)
	if err != nil {
		return errors.Wrap(err, "encode step source")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bulk_plan_steps (plan_id, idx, source, destination, state, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (plan_id, idx) DO UPDATE
		SET state = EXCLUDED.state, error = EXCLUDED.error
	`, planID, s.Index, string(src), s.Destination, string(s.State), s.Error)
	if err != nil {
		return errors.Wrapf(err, "upsert step %d", s.Index)
	}
	return nil
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	var row planRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, backend, operation, source, rule_from, rule_to, destination,
		       status, error, created_at, completed_at, 0 AS steps
		FROM bulk_plans
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(storage.ErrNotFound, "plan %s", id)
		}
		return nil, errors.Wrap(err, "get plan")
	}

	var steps []stepRow
	err = p.db.SelectContext(ctx, &steps, `
		SELECT plan_id, idx, source, destination, state, error
		FROM bulk_plan_steps
		WHERE plan_id = $1
		ORDER BY idx
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, "get plan steps")
	}

	pl := row.toPlan()
	for _, s := range steps {
		var src storage.RemoteObject
		if err := json.Unmarshal(s.Source, &src); err != nil {
			return nil, errors.Wrapf(err, "decode step %d", s.Index)
		}
		pl.Steps = append(pl.Steps, plan.Step{
			Index:       s.Index,
			Source:      src,
			Destination: s.Destination,
			State:       plan.StepState(s.State),
			Error:       s.Error,
		})
	}
	return pl, nil
}

func (p *Postgres) ListPlans(ctx context.Context, limit int) ([]plan.Summary, error) {
	var rows []planRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT p.id, p.backend, p.operation, p.source, p.rule_from, p.rule_to, p.destination,
		       p.status, p.error, p.created_at, p.completed_at,
		       (SELECT COUNT(*) FROM bulk_plan_steps s WHERE s.plan_id = p.id) AS steps
		FROM bulk_plans p
		ORDER BY p.created_at DESC
		LIMIT $1
	`, listLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "list plans")
	}

	out := make([]plan.Summary, 0, len(rows))
	for _, r := range rows {
		s := r.toPlan().Summary()
		s.Steps = r.Steps
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (r planRow) toPlan() *plan.Plan {
	return &plan.Plan{
		ID:          r.ID,
		Backend:     r.Backend,
		Operation:   plan.Operation(r.Operation),
		Source:      r.Source,
		From:        r.From,
		To:          r.To,
		Destination: r.Destination,
		Status:      plan.Status(r.Status),
		Error:       r.Error,
		Steps:       []plan.Step{},
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

var _ bulk.Journal = (*Postgres)(nil)
