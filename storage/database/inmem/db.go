package inmemdb

import (
	"sync"

	"github.com/cgpaboard/cgpaboard/core/account"
)

type (
	DB struct {
		account *accountTable
	}

	// accountTable keys rows by username; order keeps insertion order for listings.
	accountTable struct {
		sync.RWMutex
		table map[string]*account.Account
		order []string
	}
)

func Open() *DB {
	return &DB{
		account: &accountTable{table: make(map[string]*account.Account)},
	}
}
