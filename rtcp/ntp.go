package rtcp

// ntpEpochOffset is the number of seconds between the NTP epoch (1900)
// and the Unix epoch (1970), per RFC 5905.
const ntpEpochOffset = 2208988800

// toNTP converts a Go UnixNano timestamp into the 32.32 fixed-point NTP
// timestamp RTCP sender reports carry (RFC 3550 §4), ported from
// wernerd-GoRTP__sessionlocal.go's toNtpStamp.
func toNTP(tm int64) (seconds, fraction uint32) {
	seconds = uint32(tm/1e9 + ntpEpochOffset)
	fraction = uint32(((tm % 1e9) << 32) / 1e9)
	return
}

// fromNTP is the inverse of toNTP, ported from
// wernerd-GoRTP__sessionlocal.go's fromNtp.
func fromNTP(seconds, fraction uint32) int64 {
	n := (int64(fraction) * 1e9) >> 32
	return (int64(seconds)-ntpEpochOffset)*1e9 + n
}
