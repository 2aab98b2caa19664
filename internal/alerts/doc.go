// Package alerts turns the day's calendar into timed reminders.
//
// Every event produces up to three alert points (30 minutes before, 15
// minutes before, at start). The Service polls the calendar, keeps exactly
// one timer per (event, kind) key and remembers fired keys so an alert is
// presented at most once until Reset starts a new epoch.
package alerts
