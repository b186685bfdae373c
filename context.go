package uvgrtp

import "github.com/google/uuid"

// Context is the process-wide entry point into uvgRTP-Go. An application
// creates one Context and then asks it for Sessions, one per remote peer
// it talks to, mirroring uvgrtp::context's role in the original: the
// factory that owns nothing media-specific itself.
type Context struct {
	id  uuid.UUID
	log *logrusEntryHolder
}

// NewContext creates a Context. There is normally exactly one per process.
func NewContext() *Context {
	return &Context{
		id:  uuid.New(),
		log: newLogrusEntryHolder("context"),
	}
}

// CreateSession creates a Session for a single remote peer, whose
// address is given to each NewStream call. cname is the RTCP SDES CNAME
// this session's streams will
// advertise; if empty, a default derived from the context ID is used,
// matching GoRTP's newSsrcStreamOut defaulting SdesCname when unset.
func (c *Context) CreateSession(cname string) *Session {
	if cname == "" {
		cname = "uvgrtp-go@" + c.id.String()
	}
	return &Session{
		ctx:     c,
		cname:   cname,
		streams: make(map[uint32]*MediaStream),
	}
}
