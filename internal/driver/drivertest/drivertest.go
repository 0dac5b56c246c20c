// Package drivertest binds sessions to Go tests.
package drivertest

import (
	"context"
	"testing"

	"github.com/luispater/webtest/internal/driver"
)

// Open binds a session named after the running test and releases it when the
// test and its subtests finish. A failure to open stops the test.
func Open(tb testing.TB, d *driver.Driver, description string) context.Context {
	tb.Helper()
	ctx, err := d.Open(context.Background(), tb.Name(), description)
	if err != nil {
		tb.Fatalf("failed to open session for %s: %v", tb.Name(), err)
	}
	tb.Cleanup(func() {
		if err := d.Release(ctx); err != nil {
			tb.Errorf("failed to release session for %s: %v", tb.Name(), err)
		}
	})
	return ctx
}
