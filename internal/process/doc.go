// Package process provides generic subprocess lifecycle management.
//
// It exists to supervise rtl_433 decoder processes, which die for
// mundane reasons (USB resets, dongles unplugged, driver conflicts)
// and must come back without operator attention.
//
// Features:
//   - Start/stop subprocess with graceful shutdown (SIGTERM then SIGKILL)
//   - Automatic restart with exponential backoff, reset after stable runs
//   - Line-oriented stdout/stderr capture via handler callbacks
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:              "rtl433-ism433",
//	    Binary:            "/usr/bin/rtl_433",
//	    Args:              []string{"-f", "433920000", "-F", "json"},
//	    StdoutLineHandler: handleEvent,
//	    RestartOnFailure:  true,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
