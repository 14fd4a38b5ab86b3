package main

import (
	"net"
	"os"

	"github.com/aleaurre/portfolio-web/internal/xerrors"
)

// notifySystemd sends READY=1 for Type=notify units. Outside systemd
// NOTIFY_SOCKET is unset and an error says so.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "write READY=1")
	}
	return nil
}
