// Package inmemdb provides map-backed repositories for tests and local dev.
package inmemdb

import (
	"sync"

	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/user"
)

type DB struct {
	mutex    sync.RWMutex
	users    map[string]*user.User
	acts     map[string]*activity.Activity
	progress map[string]*activity.Progress
}

func NewDB() *DB {
	return &DB{
		users:    make(map[string]*user.User),
		acts:     make(map[string]*activity.Activity),
		progress: make(map[string]*activity.Progress),
	}
}

func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.users = make(map[string]*user.User)
	db.acts = make(map[string]*activity.Activity)
	db.progress = make(map[string]*activity.Progress)
}
