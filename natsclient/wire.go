package natsclient

import "fmt"

// Subject layout, all scoped under the module name:
//
//	stdb.<module>.rows.<table>        row change feed, one subject per table
//	stdb.<module>.call.<reducer>      reducer invocations
//	stdb.<module>.results.<client>    per-client reducer outcomes
//	stdb.<module>.subscribe           subscription control, request/reply
func rowSubject(module, table string) string {
	return fmt.Sprintf("stdb.%s.rows.%s", module, table)
}

func callSubject(module, reducer string) string {
	return fmt.Sprintf("stdb.%s.call.%s", module, reducer)
}

func resultsSubject(module, clientID string) string {
	return fmt.Sprintf("stdb.%s.results.%s", module, clientID)
}

func subscribeSubject(module string) string {
	return fmt.Sprintf("stdb.%s.subscribe", module)
}

// Row operations carried in rowEnvelope.Op.
const (
	opInsert uint8 = iota
	opUpdate
	opDelete
)

// rowEnvelope wraps one row change. Old and New hold the msgpack-encoded
// row images: inserts fill New, deletes fill Old, updates fill both. When
// Compressed is set the images are zstd frames.
type rowEnvelope struct {
	Op         uint8  `msgpack:"op"`
	Old        []byte `msgpack:"old,omitempty"`
	New        []byte `msgpack:"new,omitempty"`
	Compressed bool   `msgpack:"z,omitempty"`
}

// callEnvelope is one reducer invocation. Reply names the subject the
// caller listens on for the outcome.
type callEnvelope struct {
	CallID     uint64 `msgpack:"call_id"`
	Reducer    string `msgpack:"reducer"`
	Client     string `msgpack:"client"`
	Reply      string `msgpack:"reply"`
	Args       []byte `msgpack:"args,omitempty"`
	Compressed bool   `msgpack:"z,omitempty"`
}

// resultEnvelope is one reducer outcome, delivered on the caller's results
// subject.
type resultEnvelope struct {
	CallID     uint64 `msgpack:"call_id"`
	Reducer    string `msgpack:"reducer"`
	Status     uint8  `msgpack:"status"`
	Message    string `msgpack:"message,omitempty"`
	Payload    []byte `msgpack:"payload,omitempty"`
	Compressed bool   `msgpack:"z,omitempty"`
}

// subscribeRequest asks the module to apply a query subscription and reply
// on the given inbox.
type subscribeRequest struct {
	Client string `msgpack:"client"`
	Query  string `msgpack:"query"`
}

// subscribeReply acknowledges a subscription request.
type subscribeReply struct {
	OK    bool   `msgpack:"ok"`
	Error string `msgpack:"error,omitempty"`
}
