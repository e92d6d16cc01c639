package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op identifies what happened to a recharge.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
	OpPurge  Op = "purge"
)

// RechargeEvent is the message mirrored workers consume. It carries ids only;
// consumers reload the recharge from storage for upserts.
type RechargeEvent struct {
	Op         Op        `json:"op"`
	RechargeID int64     `json:"recharge_id,omitempty"`
	UserID     int64     `json:"user_id"`
	BatchID    string    `json:"batch_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewUpsertEvent(userID, rechargeID int64, batchID string) RechargeEvent {
	return RechargeEvent{Op: OpUpsert, UserID: userID, RechargeID: rechargeID, BatchID: batchID, Timestamp: time.Now().UTC()}
}

func NewDeleteEvent(userID, rechargeID int64) RechargeEvent {
	return RechargeEvent{Op: OpDelete, UserID: userID, RechargeID: rechargeID, Timestamp: time.Now().UTC()}
}

// NewPurgeEvent signals that every recharge of the user was removed.
func NewPurgeEvent(userID int64) RechargeEvent {
	return RechargeEvent{Op: OpPurge, UserID: userID, Timestamp: time.Now().UTC()}
}

func (e RechargeEvent) Validate() error {
	switch e.Op {
	case OpUpsert, OpDelete:
		if e.RechargeID <= 0 {
			return fmt.Errorf("%s event without recharge id", e.Op)
		}
	case OpPurge:
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
	if e.UserID <= 0 {
		return fmt.Errorf("%s event without user id", e.Op)
	}
	return nil
}

func (e RechargeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RechargeEventFromJSON decodes and validates a message body.
func RechargeEventFromJSON(data []byte) (RechargeEvent, error) {
	var e RechargeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return RechargeEvent{}, err
	}
	if err := e.Validate(); err != nil {
		return RechargeEvent{}, err
	}
	return e, nil
}
