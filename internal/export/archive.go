package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// Archive persists raw per-exchange records in a bolt database, one
// bucket per run. It keeps the full exchange history even when the CSV
// export runs at session granularity, replacing the append-only text
// logs the reference experiments wrote per message.
type Archive struct {
	db *bolt.DB
}

func OpenArchive(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", path, err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// AppendExchanges stores the logs under the run's bucket, keyed by
// (session id, sequence) so iteration yields send order within each
// session and sequence numbers restarting per session never collide.
func (a *Archive) AppendExchanges(runID string, logs []types.ExchangeLog) error {
	if len(logs) == 0 {
		return nil
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(runID))
		if err != nil {
			return fmt.Errorf("create run bucket %q: %w", runID, err)
		}
		for _, entry := range logs {
			value, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal exchange log: %w", err)
			}
			if err := bucket.Put(archiveKey(entry.SessionID, entry.Sequence), value); err != nil {
				return fmt.Errorf("put exchange log: %w", err)
			}
		}
		return nil
	})
}

// Exchanges returns every archived exchange log for a run.
func (a *Archive) Exchanges(runID string) ([]types.ExchangeLog, error) {
	var out []types.ExchangeLog
	err := a.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry types.ExchangeLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal exchange log: %w", err)
			}
			out = append(out, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Runs lists the run ids present in the archive.
func (a *Archive) Runs() ([]string, error) {
	var out []string
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func archiveKey(sessionID string, seq uint64) []byte {
	key := make([]byte, len(sessionID)+8)
	copy(key, sessionID)
	binary.BigEndian.PutUint64(key[len(sessionID):], seq)
	return key
}
