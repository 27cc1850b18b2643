package kafka

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// DLQError marks a message that can never be processed. The consumer diverts
// it to the dead-letter topic and moves on.
type DLQError struct {
	Err    error
	Reason string
}

func (e *DLQError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DLQError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func DLQ(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &DLQError{Err: err, Reason: reason}
}

// FatalError stops the consumer without acknowledging the message.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

type DLQPayload struct {
	OriginalTopic string    `json:"original_topic"`
	Partition     int32     `json:"partition"`
	Offset        int64     `json:"offset"`
	Key           string    `json:"key,omitempty"`
	Error         string    `json:"error"`
	Reason        string    `json:"reason,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	Payload       string    `json:"payload_base64"`
	Timestamp     time.Time `json:"timestamp"`
}

func BuildDLQPayload(msg *sarama.ConsumerMessage, err *DLQError, attempts int) DLQPayload {
	var p DLQPayload
	if msg != nil {
		p.OriginalTopic = msg.Topic
		p.Partition = msg.Partition
		p.Offset = msg.Offset
		if len(msg.Key) > 0 {
			p.Key = string(msg.Key)
		}
		if len(msg.Value) > 0 {
			p.Payload = base64.StdEncoding.EncodeToString(msg.Value)
		}
	}
	if err != nil {
		if err.Err != nil {
			p.Error = err.Err.Error()
		} else {
			p.Error = err.Error()
		}
		p.Reason = err.Reason
	}
	p.Attempts = attempts
	p.Timestamp = time.Now().UTC()
	return p
}
