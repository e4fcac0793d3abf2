// Package suppression implements the global suppression list service.
//
// This is the single source of truth for whether an email address may be
// included in a campaign audience. Entries flow in from unsubscribe and
// complaint events on any campaign and from manual admin actions.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
