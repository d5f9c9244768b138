package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var badgerPrefix = []byte("plan/")

// Badger keeps plans in a local key-value directory, one JSON value per
// plan.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the journal at dir. An empty dir keeps the
// journal in memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log: logger.With("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger journal %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(id string) []byte {
	return append(append([]byte(nil), badgerPrefix...), id...)
}

func (b *Badger) CreatePlan(_ context.Context, p *plan.Plan) error {
	val, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode plan")
	}
	return b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(p.ID))
		if err == nil {
			return errors.Errorf("plan %s already exists", p.ID)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(badgerKey(p.ID), val)
	})
}

func (b *Badger) UpdatePlan(_ context.Context, p *plan.Plan) error {
	val, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode plan")
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(p.ID)); err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.Wrapf(storage.ErrNotFound, "plan %s", p.ID)
			}
			return err
		}
		return txn.Set(badgerKey(p.ID), val)
	})
}

func (b *Badger) UpdateStep(_ context.Context, planID string, step plan.Step) error {
	return b.db.Update(func(txn *badger.Txn) error {
		p, err := getPlan(txn, planID)
		if err != nil {
			return err
		}
		if step.Index < 0 || step.Index >= len(p.Steps) {
			return errors.Wrapf(storage.ErrNotFound, "plan %s step %d", planID, step.Index)
		}
		p.Steps[step.Index] = step

		val, err := json.Marshal(p)
		if err != nil {
			return errors.Wrap(err, "encode plan")
		}
		return txn.Set(badgerKey(planID), val)
	})
}

func (b *Badger) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	var p *plan.Plan
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = getPlan(txn, id)
		return err
	})
	return p, err
}

func getPlan(txn *badger.Txn, id string) (*plan.Plan, error) {
	item, err := txn.Get(badgerKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, errors.Wrapf(storage.ErrNotFound, "plan %s", id)
	}
	if err != nil {
		return nil, err
	}
	var p plan.Plan
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode plan")
	}
	return &p, nil
}

func (b *Badger) ListPlans(_ context.Context, limit int) ([]plan.Summary, error) {
	var out []plan.Summary
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var p plan.Plan
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return errors.Wrap(err, "decode plan")
			}
			out = append(out, p.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's printf logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l badgerLogger) Infof(f string, v ...interface{}) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l badgerLogger) Debugf(f string, v ...interface{}) {
	l.log.Trace().Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

var _ bulk.Journal = (*Badger)(nil)
