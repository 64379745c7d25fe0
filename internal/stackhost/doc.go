// Package stackhost supervises the Bluetooth Mesh stack host process.
//
// The stack host owns the radio (typically a network co-processor over a
// serial line) and speaks MQTT to the commissioning service. When it runs
// on the same machine it can be started as a child process:
//
//	sup, err := stackhost.New(stackhost.Options{
//	    Binary:    "/usr/local/bin/btmesh-host",
//	    Args:      []string{"--uart", "/dev/ttyACM0"},
//	    OnRestart: func(int) { ctrl.Reset() },
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
//
// A host that exits unexpectedly is restarted after RestartDelay. A
// restarted host has lost any in-flight provisioning session, which is why
// OnRestart resets the controller.
package stackhost
