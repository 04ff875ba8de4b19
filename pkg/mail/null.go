package mail

import (
	"context"
	"time"
)

// Null is the no-mailbox backend. Every lookup comes back empty.
type Null struct{}

var _ Provider = Null{}

func (Null) SearchRecords(context.Context, string, string, int) []Summary { return nil }

func (Null) RecordDetails(context.Context, string, string) (Detail, bool) { return Detail{}, false }

func (Null) RecordsSince(context.Context, string, time.Time, int) []Summary { return nil }
