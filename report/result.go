package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TransferItem describes one file moved by a send or receive.
type TransferItem struct {
	Name   string `json:"name"`
	Size   int64  `json:"size_bytes"`
	Digest string `json:"digest"`
	Action string `json:"action"` // "sent" or "received"
}

// DiscoveryEntry describes one candidate storage directory on the device.
type DiscoveryEntry struct {
	Path      string `json:"path"`
	FreeBytes int64  `json:"free_bytes"`
	Owner     string `json:"owner"`
	Writable  bool   `json:"writable"`
}

// Success is the record emitted when an invocation completes.
type Success struct {
	Status     string           `json:"status"`
	Transport  string           `json:"transport"`
	Files      []TransferItem   `json:"files"`
	Bytes      int64            `json:"bytes"`
	Cache      string           `json:"cache,omitempty"` // "hit" or "miss", discovery only
	Dirs       []DiscoveryEntry `json:"dirs,omitempty"`
	DryRun     bool             `json:"dry_run,omitempty"`
	LogPath    string           `json:"log_path"`
	DurationMS int64            `json:"duration_ms"`
}

// Failure is the record emitted when an invocation fails.
type Failure struct {
	Status     string `json:"status"`
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	LogPath    string `json:"log_path"`
	DurationMS int64  `json:"duration_ms"`
}

// Ok returns an empty success record for the given transport kind.
func Ok(transport, logPath string) *Success {
	return &Success{
		Status:    "ok",
		Transport: transport,
		Files:     []TransferItem{},
		LogPath:   logPath,
	}
}

// Fail converts an error into a failure record.
func Fail(err error, logPath string) *Failure {
	return &Failure{
		Status:  "error",
		Code:    CodeOf(err),
		Message: MessageOf(err),
		LogPath: logPath,
	}
}

// Emit writes rec as a single JSON line, stamping the wall-clock duration
// measured from start. Exactly one call per invocation.
func Emit(w io.Writer, rec interface{}, start time.Time) error {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		// clock stepped backwards, fall back to whole seconds
		ms = int64(time.Since(start).Round(time.Second).Seconds()) * 1000
	}
	switch r := rec.(type) {
	case *Success:
		r.DurationMS = ms
	case *Failure:
		r.DurationMS = ms
	default:
		return fmt.Errorf("unknown record type %T", rec)
	}
	bs, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", bs)
	return err
}
