// Package report persists abuse reports. The engine treats it as
// fire-and-forget beyond the success boolean it acks back to the reporter.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var validate = validator.New()

// Record is one abuse report. Reporter and reported ids are connection ids;
// they identify nobody once both sides disconnect, which is all an anonymous
// service can offer a moderator anyway, so display names are captured too.
type Record struct {
	ID                  string    `msgpack:"id" validate:"required,uuid4"`
	ReporterID          string    `msgpack:"reporterId" validate:"required"`
	ReportedID          string    `msgpack:"reportedId" validate:"required"`
	ReporterDisplayName string    `msgpack:"reporterDisplayName" validate:"omitempty,max=50"`
	ReportedDisplayName string    `msgpack:"reportedDisplayName" validate:"omitempty,max=50"`
	Reason              string    `msgpack:"reason" validate:"omitempty,max=500"`
	At                  time.Time `msgpack:"at" validate:"required"`
}

// New builds a Record with a fresh id and timestamp.
func New(reporterID, reportedID, reason string) Record {
	return Record{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     reason,
		At:         time.Now().UTC(),
	}
}

// Store is a badger-backed report log. Keys are
// report:<reportedID>:<unixNano>:<recordID> so all reports against one
// participant share a prefix and sort oldest to newest within it.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens the store at dir. An empty dir selects badger's in-memory mode:
// reports then do not survive a restart, which is acceptable for dev runs.
func Open(dir string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("report: open store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Save validates and writes one record.
func (s *Store) Save(rec Record) error {
	if err := validate.Struct(rec); err != nil {
		return fmt.Errorf("report: invalid record: %w", err)
	}

	val, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("report: encode record: %w", err)
	}

	key := fmt.Sprintf("report:%s:%d:%s", rec.ReportedID, rec.At.UnixNano(), rec.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return fmt.Errorf("report: write record: %w", err)
	}
	return nil
}

// ByReported returns every report filed against reportedID, newest first.
func (s *Store) ByReported(reportedID string) ([]Record, error) {
	prefix := []byte(fmt.Sprintf("report:%s:", reportedID))

	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the end of the prefix range.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				if s.log != nil {
					s.log.Warn("skipping undecodable report record",
						"key", string(it.Item().Key()), "err", err)
				}
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("report: scan %q: %w", reportedID, err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
