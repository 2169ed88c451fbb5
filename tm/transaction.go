package tm

import (
	"github.com/google/uuid"

	"github.com/BigDataAnalyticsGroup/radb/internal/dblog"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

// Transaction is implemented by both concurrency-control protocols
// (§4.8). Identity, isolation level, and status are common; everything
// else is protocol-specific.
type Transaction interface {
	ID() string
	UUID() uuid.UUID
	IsolationLevel() IsolationLevel
	Status() Status

	Read(table string, rowID uint64, column string) (ra.Value, error)
	Update(table string, rowID uint64, values map[string]ra.Value) error
	Insert(table string, values map[string]ra.Value) (uint64, error)
	Delete(table string, rowID uint64) error

	Commit() error
	Rollback()
}

// txBase carries the fields and log scope every Transaction variant
// shares.
type txBase struct {
	name      string
	id        uuid.UUID
	isolation IsolationLevel
	status    Status
	manager   *TransactionManager
	log       *dblog.Scoped
}

func newTxBase(name string, isolation IsolationLevel, mgr *TransactionManager) txBase {
	return txBase{
		name:      name,
		id:        uuid.New(),
		isolation: isolation,
		status:    Running,
		manager:   mgr,
		log:       dblog.WithField("tx", name),
	}
}

func (t *txBase) ID() string               { return t.name }
func (t *txBase) UUID() uuid.UUID          { return t.id }
func (t *txBase) IsolationLevel() IsolationLevel { return t.isolation }
func (t *txBase) Status() Status           { return t.status }
