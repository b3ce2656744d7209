// Package node drives the two node daemons through their lifecycle.
//
// A Node owns the supervisor, the status state machine and the current job
// tracker. Start launches the network daemon, waits for it to report an
// identity, configures payments and the provider preset, launches the
// provider daemon and finally starts the activity and invoice loops. Stop
// reverses the sequence. An unsolicited daemon exit while Ready moves the
// node to Error and clears the current job.
//
// Start and Stop are serialized; Stop issued while Start is still waiting on
// a daemon cancels the startup first.
package node
