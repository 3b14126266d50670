package shell

import "errors"

// Sentinel errors returned by Execute.
var (
	// ErrQuit is returned by the quit command. Run treats it as a clean exit.
	ErrQuit = errors.New("shell: quit")

	// ErrUnknownCommand is returned for a command name that is not registered.
	ErrUnknownCommand = errors.New("shell: unknown command")

	// ErrUsage is returned when a command's arguments are malformed.
	ErrUsage = errors.New("shell: usage")

	// ErrNoActiveRule is returned by save when no filter is set.
	ErrNoActiveRule = errors.New("shell: no active rule")

	// ErrNoRuleStore is returned by save, load, rules and forget when
	// saved rules are not configured.
	ErrNoRuleStore = errors.New("shell: saved rules unavailable")

	// ErrNoPublisher is returned by pub when there is no broker connection.
	ErrNoPublisher = errors.New("shell: publishing unavailable")

	// ErrNoJournal is returned by log when the activity journal is not configured.
	ErrNoJournal = errors.New("shell: activity log unavailable")

	// ErrNoSubscriber is returned by sub when there is no broker connection.
	ErrNoSubscriber = errors.New("shell: subscribing unavailable")

	// ErrNotSubscribed is returned by unsub for a filter that was never
	// subscribed.
	ErrNotSubscribed = errors.New("shell: not subscribed")
)
