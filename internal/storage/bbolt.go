package storage

import (
	"errors"
	"fmt"
	"time"

	"bazaar/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketSession  = []byte("session")
	bucketCounters = []byte("counters")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketCounters); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func (s *BboltStorage) put(bucket []byte, item Storeable) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := item.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal %s record: %w", bucket, err)
		}
		return tx.Bucket(bucket).Put(item.Key(), data)
	})
}

// get fills item from the record stored under its key. It returns
// models.ErrNotFound when there is none.
func (s *BboltStorage) get(bucket []byte, item Storeable) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(item.Key())
		if data == nil {
			return models.ErrNotFound
		}
		return item.UnmarshalBinary(data)
	})
}

// SaveSession replaces the stored session.
func (s *BboltStorage) SaveSession(sess models.Session) error {
	dbSession := &DBSession{
		UserID: sess.UserID,
		Token:  sess.Token,
	}
	if !sess.ExpiresAt.IsZero() {
		dbSession.ExpiresAt = sess.ExpiresAt.Unix()
	}
	return s.put(bucketSession, dbSession)
}

func (s *BboltStorage) LoadSession() (models.Session, error) {
	var dbSession DBSession
	if err := s.get(bucketSession, &dbSession); err != nil {
		return models.Session{}, err
	}

	sess := models.Session{
		UserID: dbSession.UserID,
		Token:  dbSession.Token,
	}
	if dbSession.ExpiresAt != 0 {
		sess.ExpiresAt = time.Unix(dbSession.ExpiresAt, 0)
	}
	return sess, nil
}

func (s *BboltStorage) ClearSession() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(singletonKey)
	})
}

// SaveCounters stores the last known badge counters.
func (s *BboltStorage) SaveCounters(c models.Counters) error {
	return s.put(bucketCounters, &DBCounters{
		Unread:    c.Unread,
		Reviews:   c.Reviews,
		UpdatedAt: c.UpdatedAt.Unix(),
	})
}

// LoadCounters returns zero counters when none were saved yet.
func (s *BboltStorage) LoadCounters() (models.Counters, error) {
	var dbCounters DBCounters
	err := s.get(bucketCounters, &dbCounters)
	if errors.Is(err, models.ErrNotFound) {
		return models.Counters{}, nil
	}
	if err != nil {
		return models.Counters{}, err
	}
	return models.Counters{
		Unread:    dbCounters.Unread,
		Reviews:   dbCounters.Reviews,
		UpdatedAt: time.Unix(dbCounters.UpdatedAt, 0),
	}, nil
}
