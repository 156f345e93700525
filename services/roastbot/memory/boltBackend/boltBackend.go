// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package boltBackend

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/memory"
)

var log = logrus.WithFields(logrus.Fields{
	"component": "memory",
	"backend":   "bolt",
})

type boltBackend struct {
	db       *bolt.DB
	filePath string
	maxTurns int
}

// Bucket structure is
//	sessions	> {session_id}	> {exchange_seq}	> {memory.Exchange}

var sessionsBucketName = []byte("sessions")

func getSessionsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	sessionsBucket := tx.Bucket(sessionsBucketName)
	if sessionsBucket == nil {
		return nil, memory.NewUnexpectedError("sessions bucket doesn't exist")
	}
	return sessionsBucket, nil
}

func serializeSeq(seq uint64) []byte {
	// Format using a hex representation of a fixed length of 16 characters padded with 0
	return []byte(fmt.Sprintf("%016x", seq))
}

func serializeExchange(exchange *memory.Exchange) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(*exchange)
	if err != nil {
		return nil, memory.NewUnexpectedError("unable to serialize exchange (%w)", err)
	}
	return buf.Bytes(), nil
}

func deserializeExchange(v []byte) (memory.Exchange, error) {
	dec := gob.NewDecoder(bytes.NewBuffer(v))
	exchange := memory.Exchange{}
	err := dec.Decode(&exchange)
	if err != nil {
		return memory.Exchange{}, memory.NewUnexpectedError("unable to deserialize exchange (%w)", err)
	}
	return exchange, nil
}

// CreateBoltBackend creates a Backend that will store the last "maxTurns" exchanges of each session in a
// bolt-managed file
func CreateBoltBackend(filePath string, maxTurns int) (memory.Backend, error) {
	if maxTurns <= 0 {
		return nil, fmt.Errorf("invalid max turns %d, expecting a strictly positive value", maxTurns)
	}
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open memory file %q (%w)", filePath, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucketName)
		if err != nil {
			return memory.NewUnexpectedError("unable to create the sessions bucket (%w)", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", filePath).Debug("memory file opened")

	return &boltBackend{
		db:       db,
		filePath: filePath,
		maxTurns: maxTurns,
	}, nil
}

func (b *boltBackend) Destroy() {
	if b.db == nil {
		return
	}
	if err := b.db.Close(); err != nil {
		log.WithField("error", err).Warn("unable to close the memory file")
	}
	b.db = nil
}

func (b *boltBackend) Add(_ context.Context, sessionID string, exchange memory.Exchange) error {
	serializedExchange, err := serializeExchange(&exchange)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		sessionsBucket, err := getSessionsBucket(tx)
		if err != nil {
			return err
		}
		sessionBucket, err := sessionsBucket.CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return memory.NewUnexpectedError("unable to create the bucket for session %q (%w)", sessionID, err)
		}
		seq, err := sessionBucket.NextSequence()
		if err != nil {
			return memory.NewUnexpectedError("unable to generate the next exchange key (%w)", err)
		}
		err = sessionBucket.Put(serializeSeq(seq), serializedExchange)
		if err != nil {
			return memory.NewUnexpectedError("unable to store exchange (%w)", err)
		}

		c := sessionBucket.Cursor()
		count := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for k, _ := c.First(); k != nil && count > b.maxTurns; k, _ = c.First() {
			err := c.Delete()
			if err != nil {
				return memory.NewUnexpectedError("unable to evict exchange (%w)", err)
			}
			count--
		}
		return nil
	})
}

func (b *boltBackend) History(_ context.Context, sessionID string) ([]memory.Exchange, error) {
	history := []memory.Exchange{}
	err := b.db.View(func(tx *bolt.Tx) error {
		sessionsBucket, err := getSessionsBucket(tx)
		if err != nil {
			return err
		}
		sessionBucket := sessionsBucket.Bucket([]byte(sessionID))
		if sessionBucket == nil {
			return nil
		}
		return sessionBucket.ForEach(func(_, v []byte) error {
			exchange, err := deserializeExchange(v)
			if err != nil {
				return err
			}
			history = append(history, exchange)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (b *boltBackend) Clear(_ context.Context, sessionID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		sessionsBucket, err := getSessionsBucket(tx)
		if err != nil {
			return err
		}
		err = sessionsBucket.DeleteBucket([]byte(sessionID))
		if err != nil && err != bolt.ErrBucketNotFound {
			return memory.NewUnexpectedError("unable to delete the bucket for session %q (%w)", sessionID, err)
		}
		return nil
	})
}

func (b *boltBackend) Sessions(_ context.Context) ([]string, error) {
	sessionIDs := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		sessionsBucket, err := getSessionsBucket(tx)
		if err != nil {
			return err
		}
		return sessionsBucket.ForEach(func(k, v []byte) error {
			// Nested buckets have a nil value
			if v == nil {
				sessionIDs = append(sessionIDs, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessionIDs, nil
}
