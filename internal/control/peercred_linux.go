//go:build linux

package control

import (
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sys/unix"
)

/*
* Producers are identified by uid.  A periodic producer runs as a new
* process each time and must replace what its previous run sent.
 */
func peerIdentity(conn *net.UnixConn) string {

	raw, err := conn.SyscallConn()
	if err != nil {
		return anonymous
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil {
		slog.Warn("peer credentials unavailable", "error", err, "cred_error", credErr)
		return anonymous
	}

	slog.Debug("peer", "pid", cred.Pid, "uid", cred.Uid, "gid", cred.Gid)
	return fmt.Sprintf("uid:%d", cred.Uid)
}
