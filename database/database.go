package database

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const guildBucket = "guilds"

// Store - Bolt-backed guild document store.
//
// Every write goes through UpdateGuild, which serializes mutations per
// guild so a reaction approval and an expiry sweep cannot race on the
// same request set.
type Store struct {
	db *bolt.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open - Open or create the bolt database at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(guildBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create guild bucket: %w", err)
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close - Close the DB connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) guildLock(gid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[gid]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gid] = l
	}
	return l
}

// Guild - Get the document for a guild. Unknown guilds read as safe
// defaults without touching the database; the document is persisted by
// the first mutating command.
func (s *Store) Guild(gid string) (GuildConfig, error) {
	gc := newGuildConfig(gid)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(guildBucket)).Get([]byte(gid))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &gc)
	})
	if err != nil {
		return gc, fmt.Errorf("get guild %v: %w", gid, err)
	}
	if gc.Roles == nil {
		gc.Roles = make(map[string]RoleEntry)
	}
	if gc.Requests == nil {
		gc.Requests = make(map[string]Request)
	}
	return gc, nil
}

// UpdateGuild - Read-modify-write on one guild document.
//
// fn runs on the decoded document inside the transaction; returning an
// error aborts the write and surfaces the error unchanged. The document
// is created with defaults if missing.
func (s *Store) UpdateGuild(gid string, fn func(*GuildConfig) error) (GuildConfig, error) {
	l := s.guildLock(gid)
	l.Lock()
	defer l.Unlock()

	var gc GuildConfig
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(guildBucket))
		v := b.Get([]byte(gid))
		if v == nil {
			gc = newGuildConfig(gid)
		} else if err := json.Unmarshal(v, &gc); err != nil {
			return fmt.Errorf("decode guild %v: %w", gid, err)
		}
		if gc.Roles == nil {
			gc.Roles = make(map[string]RoleEntry)
		}
		if gc.Requests == nil {
			gc.Requests = make(map[string]Request)
		}
		if err := fn(&gc); err != nil {
			return err
		}
		bts, err := json.Marshal(gc)
		if err != nil {
			return fmt.Errorf("encode guild %v: %w", gid, err)
		}
		return b.Put([]byte(gid), bts)
	})
	return gc, err
}

// DeleteGuild - Drop a guild document, used when the bot is removed
// from the guild
func (s *Store) DeleteGuild(gid string) error {
	l := s.guildLock(gid)
	l.Lock()
	defer l.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(guildBucket)).Delete([]byte(gid))
	})
	if err != nil {
		return fmt.Errorf("delete guild %v: %w", gid, err)
	}
	return nil
}

// Guilds - Snapshot of all guild documents, used by the expiry sweep
func (s *Store) Guilds() ([]GuildConfig, error) {
	var all []GuildConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(guildBucket)).ForEach(func(_, v []byte) error {
			var gc GuildConfig
			if err := json.Unmarshal(v, &gc); err != nil {
				return err
			}
			all = append(all, gc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	return all, nil
}
