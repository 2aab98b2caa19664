// Package schedule runs housekeeping jobs on cron or interval schedules:
// the midnight rollover of the alert fired set and the periodic resync of
// remote calendars.
//
// Jobs run on the cron goroutine with a per-job timeout. A job that is
// still running when its next trigger arrives is skipped, never queued.
package schedule
