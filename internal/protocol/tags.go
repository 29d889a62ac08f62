// ============================================================================
// LSSEFT Protocol - message tags and frames
// ============================================================================
//
// Package: internal/protocol
// File: tags.go
// Purpose: The fixed tag catalogue shared by master and workers.
//
// Tag layout:
//   1..5            control tags (EnterPhase, Ready, EndOfWork,
//                   EndOfWorkAck, Terminate)
//   16 + 2*kind     assignment of an item of that kind (master -> worker)
//   16 + 2*kind + 1 result of an item of that kind (worker -> master)
//
//   The control set is closed. New work kinds extend the catalogue by
//   registering a Kind; their tags follow from the layout above.
//
// ============================================================================

package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation marks an unexpected tag, sender or state. It is fatal.
var ErrProtocolViolation = errors.New("protocol violation")

// Tag labels a message on the wire.
type Tag uint16

const (
	TagEnterPhase Tag = iota + 1
	TagReady
	TagEndOfWork
	TagEndOfWorkAck
	TagTerminate
)

const tagKindBase Tag = 16

// Kind identifies a family of work items.
type Kind uint8

// Class groups tags by direction and role.
type Class int

const (
	ClassUnknown Class = iota
	ClassControl
	ClassAssignment
	ClassResult
)

// AssignmentTag is the master-to-worker tag for items of kind k.
func AssignmentTag(k Kind) Tag { return tagKindBase + Tag(k)*2 }

// ResultTag is the worker-to-master tag for results of kind k.
func ResultTag(k Kind) Tag { return tagKindBase + Tag(k)*2 + 1 }

// Class reports what kind of message t labels.
func (t Tag) Class() Class {
	switch {
	case t >= TagEnterPhase && t <= TagTerminate:
		return ClassControl
	case t < tagKindBase:
		return ClassUnknown
	case (t-tagKindBase)%2 == 0:
		return ClassAssignment
	default:
		return ClassResult
	}
}

// Kind returns the work kind of an assignment or result tag.
func (t Tag) Kind() (Kind, bool) {
	if c := t.Class(); c != ClassAssignment && c != ClassResult {
		return 0, false
	}
	return Kind((t - tagKindBase) / 2), true
}

func (t Tag) String() string {
	switch t {
	case TagEnterPhase:
		return "EnterPhase"
	case TagReady:
		return "Ready"
	case TagEndOfWork:
		return "EndOfWork"
	case TagEndOfWorkAck:
		return "EndOfWorkAck"
	case TagTerminate:
		return "Terminate"
	}
	k, ok := t.Kind()
	switch {
	case !ok:
		return fmt.Sprintf("Tag(%d)", uint16(t))
	case t.Class() == ClassAssignment:
		return fmt.Sprintf("Assign(%d)", k)
	default:
		return fmt.Sprintf("Result(%d)", k)
	}
}

// Message is one frame between two peers. Source is the sender's rank.
type Message struct {
	Source int
	Tag    Tag
	Body   []byte
}

// PhaseHeader is the body of EnterPhase.
type PhaseHeader struct {
	RunID string
	Phase int
	Kind  Kind
}

// Violationf builds an error wrapping ErrProtocolViolation.
func Violationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}
