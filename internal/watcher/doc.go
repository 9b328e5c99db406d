// Package watcher reports changes to a small set of individual files, such
// as the popular-query list the suggestion engine reloads on edit.
//
// Strategy:
//   - Primary: fsnotify on each file's parent directory, so editors that
//     save by rename are still observed
//   - Fallback: stat polling where fsnotify is unavailable (network mounts)
//
// Bursts of events for one file are debounced into a single callback.
//
// Usage:
//
//	w := watcher.New(watcher.DefaultOptions())
//	if err := w.Add("/etc/hypersearch/popular.yaml"); err != nil {
//	    return err
//	}
//	go w.Run(ctx, func(events []watcher.Event) {
//	    // reload
//	})
//	defer w.Stop()
package watcher
