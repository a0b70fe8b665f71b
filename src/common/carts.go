package common

import (
	"context"
	"fmt"
	"log"

	"cshop/src/lib"
)

// CartStore clears a customer's storefront cart once their payment lands.
type CartStore interface {
	Clear(ctx context.Context, customerId uint) error
}

type RedisCartStore struct{}

func (c *RedisCartStore) Clear(ctx context.Context, customerId uint) error {
	rd := lib.GetRedisClient()
	if rd == nil {
		return ErrStoreUnavailable
	}
	key := fmt.Sprintf("cart:%d", customerId)
	if err := rd.Del(ctx, key).Err(); err != nil {
		log.Printf("Error clearing cart for customer %d: %s\n", customerId, err.Error())
		return err
	}
	return nil
}
