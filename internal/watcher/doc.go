// Package watcher turns device package changes and save-directory changes
// into events.
//
// The device offers no push notification over adb, so the Watcher polls the
// installed package list and diffs consecutive listings. Differences become
// Installed or Uninstalled events, delivered on a channel; Forward feeds
// them into the inventory's entry points.
//
// Key features:
//   - Listing diff on a ticker (default every 5 seconds)
//   - Updates reported the way the device broadcasts them
//   - fsnotify watch of the export directory (DirWatcher)
//   - Daemon mode support with PID file management
//   - Graceful shutdown with SIGTERM/SIGINT handling
//
// Example usage:
//
//	w, err := watcher.New(client, 5*time.Second, logger.Get())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := w.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
//
//	go watcher.Forward(ctx, w.Events(), inv, logger.Get())
//
//	// Or start as daemon
//	if err := watcher.StartDaemon(pidFile, logFile, "--serial", serial); err != nil {
//		log.Fatal(err)
//	}
package watcher
