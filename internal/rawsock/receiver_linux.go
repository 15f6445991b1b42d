//go:build linux

// Package rawsock is the platform abstraction over the link-layer receive
// socket (AF_PACKET + classic-BPF) and the raw ICMPv6 send socket that
// NSMonitor/NAMonitor and NDProxy build on. Grounded on the same
// syscall-level approach dantte-lp-gobfd's rawsock_linux.go and
// fengtuo58-wireguard-go's conn_linux.go use for privileged packet I/O on
// Linux: golang.org/x/sys/unix sockets with interface binding via
// SockaddrLinklayer, attached with a classic-BPF program via
// SO_ATTACH_FILTER so uninteresting frames never wake user space.
package rawsock

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/ndproxy/ndproxy/internal/ndperrors"
)

// recvBufLen is the per-call receive buffer size (§4.3: "owns a 1500-byte
// receive buffer"); frames longer than this are truncated.
const recvBufLen = 1500

// PacketReceiver is an AF_PACKET socket delivering raw IPv6 frames
// (captured below the Ethernet header, i.e. starting at the IPv6 header)
// filtered in-kernel to a single ICMPv6 NDP message type. The underlying fd
// is non-blocking; Recv itself blocks the calling goroutine until a frame
// arrives by waiting in poll(2), which holds the calling OS thread for the
// duration of the wait.
type PacketReceiver struct {
	fd  int
	buf []byte
}

// NewPacketReceiver opens a socket delivering raw IPv6 frames.
func NewPacketReceiver() (*PacketReceiver, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM, htons(unix.ETH_P_IPV6))
	if err != nil {
		return nil, &ndperrors.SocketOptError{Kind: ndperrors.SocketCreate, Err: err}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, &ndperrors.SocketOptError{Kind: ndperrors.SocketCreate, Err: err}
	}
	return &PacketReceiver{fd: fd, buf: make([]byte, recvBufLen)}, nil
}

// BindToInterface restricts receives to a single OS interface by scope id.
func (r *PacketReceiver) BindToInterface(scopeID uint32) error {
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  int(scopeID),
	}
	if err := unix.Bind(r.fd, sa); err != nil {
		return &ndperrors.SocketOptError{Kind: ndperrors.BindToIface, Err: err}
	}
	return nil
}

// SetAllMulti joins all-multicast reception mode so solicited-node
// multicast frames (ff02::1:ff00:0/104) reach the socket without
// per-address subscription.
func (r *PacketReceiver) SetAllMulti(scopeID uint32) error {
	mreq := unix.PacketMreq{
		Ifindex: int32(scopeID),
		Type:    unix.PACKET_MR_ALLMULTI,
	}
	if err := unix.SetsockoptPacketMreq(r.fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		return &ndperrors.SocketOptError{Kind: ndperrors.AllMulti, Err: err}
	}
	return nil
}

// AttachFilterNS installs a kernel-side classic-BPF program accepting only
// Neighbor Solicitation (ICMPv6 type 135) frames.
func (r *PacketReceiver) AttachFilterNS() error {
	return r.attachFilter(135)
}

// AttachFilterNA installs a kernel-side classic-BPF program accepting only
// Neighbor Advertisement (ICMPv6 type 136) frames.
func (r *PacketReceiver) AttachFilterNA() error {
	return r.attachFilter(136)
}

func (r *PacketReceiver) attachFilter(icmpType byte) error {
	insns, err := ndpFilterProgram(icmpType)
	if err != nil {
		return &ndperrors.SocketOptError{Kind: ndperrors.AttachBPF, Err: err}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(insns)),
		Filter: (*unix.SockFilter)(rawInstructionsPtr(insns)),
	}
	if err := unix.SetsockoptSockFprog(r.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return &ndperrors.SocketOptError{Kind: ndperrors.AttachBPF, Err: err}
	}
	return nil
}

// Recv suspends until a frame is available and returns a fresh owned byte
// buffer of the exact frame length. The fd is non-blocking, so EAGAIN/EWOULDBLOCK
// and EINTR are not errors: Recv waits for readability via poll(2) and
// retries, exactly as spec.md §4.3 requires ("recv() suspends until a frame
// is available"). Only a genuine syscall failure is returned as an IOError.
func (r *PacketReceiver) Recv() ([]byte, error) {
	for {
		n, _, err := unix.Recvfrom(r.fd, r.buf, 0)
		switch err {
		case nil:
			out := make([]byte, n)
			copy(out, r.buf[:n])
			return out, nil
		case unix.EAGAIN:
			if err := r.waitReadable(); err != nil {
				return nil, &ndperrors.IOError{Op: "poll", Err: err}
			}
		case unix.EINTR:
			// retry immediately
		default:
			return nil, &ndperrors.IOError{Op: "recvfrom", Err: err}
		}
	}
}

// waitReadable blocks until the socket has data to read. unix.EAGAIN and
// unix.EWOULDBLOCK are the same value on Linux, so the switch in Recv above
// already covers both.
func (r *PacketReceiver) waitReadable() error {
	fds := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, -1)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return err
		case n > 0:
			return nil
		}
	}
}

// Fd exposes the underlying file descriptor so callers can multiplex reads
// (e.g. via unix.Poll) without blocking the whole process.
func (r *PacketReceiver) Fd() int { return r.fd }

// Close releases the socket.
func (r *PacketReceiver) Close() error {
	return unix.Close(r.fd)
}

// rawInstructionsPtr reinterprets an assembled classic-BPF program as the
// *unix.SockFilter the SO_ATTACH_FILTER sockopt expects. bpf.RawInstruction
// and unix.SockFilter share the identical four-field wire layout (Op/Jt/Jf/K
// as uint16/uint8/uint8/uint32), so the conversion is a straight reinterpret
// cast rather than a field-by-field copy.
func rawInstructionsPtr(insns []bpf.RawInstruction) unsafe.Pointer {
	if len(insns) == 0 {
		return nil
	}
	return unsafe.Pointer(&insns[0])
}

// htons converts a 16-bit value from host to network byte order, needed
// because AF_PACKET protocol fields are always carried big-endian
// regardless of host endianness.
func htons(v uint16) int {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return int(binary.NativeEndian.Uint16(b[:]))
}
