package prometheus

import (
	"context"

	"github.com/MrEthical07/authcore"
)

type nopStore struct{}

func (nopStore) FindByEmail(context.Context, string) (authcore.IdentityRecord, error) {
	return authcore.IdentityRecord{}, authcore.ErrIdentityNotFound
}

func (nopStore) Insert(context.Context, authcore.IdentityRecord) error { return nil }
