// Package tools provides the command runners used by the exec service.
//
// ExecRunner runs commands on the local host. SSHRunner runs the same
// commands on a remote host over SSH with public-key auth.
package tools
