// Package calendar is the daily plan the alert scheduler reads from.
//
// Backends:
//   - sqlite: modernc.org/sqlite file, single writer, WAL.
//   - file: one JSON document on an afero.Fs, rewritten atomically.
//   - ics: read-only iCalendar feeds with RRULE/EXDATE expansion.
//
// Writes made through a Notifying store, and edits detected by Watch, are
// announced on the event bus as eventbus.TypeCalendarChanged with a Change
// payload.
package calendar
