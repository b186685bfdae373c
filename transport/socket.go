// Copyright (C) 2011 Werner Dittmann
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package transport implements the UDP socket pair (RTP port, RTP+1 RTCP
// port) that a MediaStream sends and receives on. It generalizes GoRTP's
// TransportUDP from a single RTP-stack-wide transport into a pair owned by
// one MediaStream.
package transport

import (
	"fmt"
	"net"
	"sync"
)

const defaultBufferSize = 2048

// zrtpMagicCookie is the 4-octet cookie RFC 6189 §5.1.2 places right
// after a ZRTP packet's preamble and sequence number, at bytes 4-7,
// the offset where an RTP packet carries its timestamp — the two wire
// formats are multiplexed on the
// same port by checking for this cookie before ever parsing the buffer
// as RTP.
var zrtpMagicCookie = [4]byte{'Z', 'R', 'T', 'P'}

// Packet is a datagram read off the wire together with its origin.
type Packet struct {
	Data []byte
	From *net.UDPAddr
}

// Socket sends and receives RTP and RTCP datagrams for one MediaStream.
type Socket interface {
	// SendData writes an RTP datagram to addr.
	SendData(buf []byte, addr *net.UDPAddr) error
	// SendCtrl writes an RTCP datagram to addr.
	SendCtrl(buf []byte, addr *net.UDPAddr) error
	// DataChan returns the channel on which inbound RTP datagrams arrive.
	DataChan() <-chan Packet
	// CtrlChan returns the channel on which inbound RTCP datagrams arrive.
	CtrlChan() <-chan Packet
	// ZRTPChan returns the channel on which inbound ZRTP signalling
	// datagrams arrive, demultiplexed off the RTP port by magic cookie.
	ZRTPChan() <-chan Packet
	// LocalDataAddr returns the bound RTP address.
	LocalDataAddr() *net.UDPAddr
	// LocalCtrlAddr returns the bound RTCP address.
	LocalCtrlAddr() *net.UDPAddr
	// Close stops the receive loops and closes both sockets.
	Close() error
}

// UDPSocket is the default Socket implementation. It binds two UDP
// sockets, one for RTP on an even port and one for RTCP on the next odd
// port, exactly the pairing RFC 3550 §11 and GoRTP's NewTransportUDP
// require.
type UDPSocket struct {
	dataConn, ctrlConn *net.UDPConn

	dataCh chan Packet
	ctrlCh chan Packet
	zrtpCh chan Packet

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ListenUDP binds a UDPSocket to ip:port for RTP and ip:port+1 for RTCP.
// port must be even, matching GoRTP's AddRemote requirement that "the
// socket with the even port number sends and receives RTP packets."
// reuseAddr requests SO_REUSEADDR on both sockets; it defaults to off at
// the Config layer because the original uvgRTP leaves that call commented
// out in media_stream.cc's init_connection.
func ListenUDP(ip net.IP, port int, reuseAddr bool) (*UDPSocket, error) {
	if port&0x1 == 0x1 {
		return nil, fmt.Errorf("transport: RTP port %d is not even", port)
	}

	lc := net.ListenConfig{}
	if reuseAddr {
		lc.Control = controlReuseAddr
	}

	dataAddr := fmt.Sprintf("%s:%d", ip.String(), port)
	ctrlAddr := fmt.Sprintf("%s:%d", ip.String(), port+1)

	dataPC, err := lc.ListenPacket(nil, "udp", dataAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind RTP socket: %w", err)
	}
	ctrlPC, err := lc.ListenPacket(nil, "udp", ctrlAddr)
	if err != nil {
		dataPC.Close()
		return nil, fmt.Errorf("transport: bind RTCP socket: %w", err)
	}

	s := &UDPSocket{
		dataConn: dataPC.(*net.UDPConn),
		ctrlConn: ctrlPC.(*net.UDPConn),
		dataCh:   make(chan Packet, 64),
		ctrlCh:   make(chan Packet, 64),
		zrtpCh:   make(chan Packet, 64),
	}

	s.wg.Add(2)
	go s.readDataLoop()
	go s.readLoop(s.ctrlConn, s.ctrlCh)

	return s, nil
}

func (s *UDPSocket) SendData(buf []byte, addr *net.UDPAddr) error {
	_, err := s.dataConn.WriteToUDP(buf, addr)
	return err
}

func (s *UDPSocket) SendCtrl(buf []byte, addr *net.UDPAddr) error {
	_, err := s.ctrlConn.WriteToUDP(buf, addr)
	return err
}

func (s *UDPSocket) DataChan() <-chan Packet { return s.dataCh }
func (s *UDPSocket) CtrlChan() <-chan Packet { return s.ctrlCh }
func (s *UDPSocket) ZRTPChan() <-chan Packet { return s.zrtpCh }

func (s *UDPSocket) LocalDataAddr() *net.UDPAddr { return s.dataConn.LocalAddr().(*net.UDPAddr) }
func (s *UDPSocket) LocalCtrlAddr() *net.UDPAddr { return s.ctrlConn.LocalAddr().(*net.UDPAddr) }

// Close stops the receive loops. Like GoRTP's CloseRecv, it relies on
// closing the underlying connection to unblock the pending ReadFromUDP
// call in readLoop rather than a separate cancellation signal.
func (s *UDPSocket) Close() error {
	s.closeOnce.Do(func() {
		s.dataConn.Close()
		s.ctrlConn.Close()
	})
	s.wg.Wait()
	return nil
}

// readDataLoop is readLoop's counterpart for the RTP port, demultiplexing
// ZRTP signalling datagrams (identified by zrtpMagicCookie at the wire
// offset RFC 6189 §5.1.2 fixes) away from ordinary RTP datagrams before
// either reaches its consumer.
func (s *UDPSocket) readDataLoop() {
	defer s.wg.Done()
	defer close(s.dataCh)
	defer close(s.zrtpCh)

	buf := make([]byte, defaultBufferSize)
	for {
		n, from, err := s.dataConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])

		out := s.dataCh
		if n >= 8 && [4]byte{cp[4], cp[5], cp[6], cp[7]} == zrtpMagicCookie {
			out = s.zrtpCh
		}

		select {
		case out <- Packet{Data: cp, From: from}:
		default:
		}
	}
}

// readLoop mirrors GoRTP's readDataPacket/readCtrlPacket: blocking reads
// on one socket, forwarded to an internal channel until the connection is
// closed out from under the read.
func (s *UDPSocket) readLoop(conn *net.UDPConn, out chan<- Packet) {
	defer s.wg.Done()
	defer close(out)

	buf := make([]byte, defaultBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])

		select {
		case out <- Packet{Data: cp, From: from}:
		default:
			// Receiver is backed up; drop rather than block the socket,
			// the same trade-off GoRTP makes with its dataReceiveChan
			// select/default pair.
		}
	}
}
