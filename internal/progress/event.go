package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageItemDone    Stage = "ITEM_DONE"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageRunCanceled Stage = "RUN_CANCELED"
)

// ItemStatus is the terminal state of one identifier.
type ItemStatus string

// Item statuses carried by ITEM_DONE events.
const (
	ItemGame        ItemStatus = "game"
	ItemOutOfScope  ItemStatus = "out_of_scope"
	ItemNonexistent ItemStatus = "nonexistent"
	ItemFailed      ItemStatus = "failed"
)

// Event captures one step of run progress.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Command names the CLI verb on RUN_START events.
	Command string
	// AppID and Status are set on ITEM_DONE events.
	AppID  int64
	Status ItemStatus
	// Dur is the item latency, or the run wall time on terminal run events.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageRunCanceled:
	case StageItemDone:
		if e.AppID <= 0 {
			return errors.New("item done requires appid")
		}
		switch e.Status {
		case ItemGame, ItemOutOfScope, ItemNonexistent, ItemFailed:
		default:
			return fmt.Errorf("unknown item status %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
