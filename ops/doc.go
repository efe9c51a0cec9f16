// Package ops holds the concrete provisioning operations. Each one embeds
// provision.BaseOperation and drives the machine through a host.Host, keeping
// enough state from Execute for its own Rollback.
package ops
