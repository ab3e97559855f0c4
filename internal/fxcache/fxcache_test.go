package fxcache

import (
	"context"
	"testing"
)

func TestGetSameCurrencyShortCircuitsWithoutRedis(t *testing.T) {
	c := &Cache{} // no client configured; the same-currency path must never dial it.
	rate, ok, err := c.Get(context.Background(), "USD", "USD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || rate != 1 {
		t.Fatalf("expected a same-currency rate of 1, got rate=%v ok=%v", rate, ok)
	}
}

func TestKeyIsPairScoped(t *testing.T) {
	if key("USD", "EUR") == key("EUR", "USD") {
		t.Error("expected the cache key to be direction-sensitive")
	}
	if key("USD", "EUR") != key("USD", "EUR") {
		t.Error("expected the cache key to be stable for the same pair")
	}
}
