// Package campaign implements the campaign lifecycle state machine.
//
// The service owns every status change: create, edit and delete while a
// campaign is draft or scheduled, scheduling, the send transition (audience
// resolution plus write-once sentAt/recipientCount) and the terminal
// transitions reported by the delivery pipeline. Transitions for one
// campaign are serialized through a keyed lock; different campaigns proceed
// in parallel.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
