package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

func ExampleMemoryRateLimiter() {
	rl := NewMemoryRateLimiter("example")

	ctx := context.Background()
	_, err := rl.TrySetRate(ctx, Config{
		Mode:     ModeOverall,
		Rate:     10,
		Interval: time.Second,
	})
	if err != nil {
		panic(err)
	}

	ok, err := rl.TryAcquire(ctx)
	if err != nil {
		panic(err)
	}

	fmt.Println(ok)
	// Output:
	// true
}
