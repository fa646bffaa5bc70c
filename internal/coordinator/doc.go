// Package coordinator polls the locks behind one gateway.
//
// A cycle probes the gateway once with a short single-attempt status call.
// If the probe fails, or the gateway reports it is synchronizing, no lock is
// contacted and the devices keep their last state. Otherwise each lock is
// refreshed in turn under a per-device retry policy, with a short pause
// between locks because the gateway serves one request at a time.
//
// Reachability is sticky: the first failed probe after a success logs a
// warning and notifies listeners; later failures log at debug level until
// the gateway answers again.
//
// Scheduler drives cycles on an interval using robfig/cron with
// SkipIfStillRunning; Coordinator.Refresh additionally coalesces concurrent
// callers with singleflight so on-demand refreshes never overlap a
// scheduled one.
package coordinator
