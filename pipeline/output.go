package pipeline

import (
	"slices"
	"time"

	"github.com/duke-git/lancet/v2/slice"

	"github.com/smnsjas/go-srsclient/messages"
)

// Record is one entry of a data stream.
type Record struct {
	Stream  messages.StreamType
	Message string
	Time    time.Time
}

// Output is everything a finished job produced. Each FetchOutput call returns
// its own copy.
type Output struct {
	JobID string
	// Lines are the rendered output objects, in order.
	Lines []string
	// Records are the fetched stream records, grouped by stream in the
	// configured order and in service order within a stream.
	Records []Record
}

// Stream returns the records of one stream.
func (o *Output) Stream(st messages.StreamType) []Record {
	return slice.Filter(o.Records, func(_ int, r Record) bool {
		return r.Stream == st
	})
}

// Messages returns the messages of one stream.
func (o *Output) Messages(st messages.StreamType) []string {
	return slice.Map(o.Stream(st), func(_ int, r Record) string {
		return r.Message
	})
}

// Empty reports whether the job produced neither lines nor records.
func (o *Output) Empty() bool {
	return len(o.Lines) == 0 && len(o.Records) == 0
}

func (o *Output) clone() *Output {
	return &Output{JobID: o.JobID, Lines: slices.Clone(o.Lines), Records: slices.Clone(o.Records)}
}

func toRecords(st messages.StreamType, in []messages.StreamRecord) []Record {
	return slice.Map(in, func(_ int, r messages.StreamRecord) Record {
		return Record{Stream: st, Message: r.Message, Time: messages.TimeOf(r.Time)}
	})
}
