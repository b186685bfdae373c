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

package uvgrtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Session groups the MediaStreams an application runs against one remote
// peer. It owns the SSRC registry shared by those streams so that two
// MediaStreams opened in the same Session never collide with each other,
// the same guarantee GoRTP's NewSsrcStreamOut gives by retrying newSsrc()
// against lookupSsrcMap until it finds a free value.
type Session struct {
	mu      sync.RWMutex
	ctx     *Context
	cname   string
	streams map[uint32]*MediaStream
}

// CNAME returns the RTCP SDES CNAME this session's streams advertise.
func (s *Session) CNAME() string {
	return s.cname
}

// reserveSsrc generates a random SSRC not already used by another
// MediaStream in this session.
func (s *Session) reserveSsrc() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		ssrc := randomUint32()
		if _, taken := s.streams[ssrc]; !taken {
			s.streams[ssrc] = nil // reserve the slot before releasing the lock
			return ssrc
		}
	}
}

func (s *Session) registerStream(ssrc uint32, ms *MediaStream) {
	s.mu.Lock()
	s.streams[ssrc] = ms
	s.mu.Unlock()
}

func (s *Session) unregisterStream(ssrc uint32) {
	s.mu.Lock()
	delete(s.streams, ssrc)
	s.mu.Unlock()
}

// Streams returns the MediaStreams currently active in this session.
func (s *Session) Streams() []*MediaStream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*MediaStream, 0, len(s.streams))
	for _, ms := range s.streams {
		if ms != nil {
			out = append(out, ms)
		}
	}
	return out
}

// CloseSession tears down every MediaStream the session owns, each one
// sending its RTCP BYE first, mirroring GoRTP's CloseSession looping over
// streamsOut and calling SsrcStreamCloseForIndex before closing transports.
func (s *Session) CloseSession() {
	for _, ms := range s.Streams() {
		_ = ms.Stop()
	}
}

func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("uvgrtp: crypto/rand failed: %v", err))
	}
	return binary.BigEndian.Uint32(b[:])
}

func randomUint16() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("uvgrtp: crypto/rand failed: %v", err))
	}
	return binary.BigEndian.Uint16(b[:])
}
